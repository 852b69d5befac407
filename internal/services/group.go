package services

import (
	"errors"

	"github.com/rmaraujo/formbridge/backend/internal/models"
	"gorm.io/gorm"
)

// ApprovalGroupService manages groups and their membership. Workflow
// levels store group ids only; ResolveMembers flattens membership on
// demand so directory changes propagate immediately.
type ApprovalGroupService struct {
	db *gorm.DB
}

func NewApprovalGroupService(db *gorm.DB) *ApprovalGroupService {
	return &ApprovalGroupService{db: db}
}

type SaveGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

func (s *ApprovalGroupService) List() ([]models.ApprovalGroup, error) {
	var groups []models.ApprovalGroup
	err := s.db.Order("name").Find(&groups).Error
	return groups, err
}

func (s *ApprovalGroupService) GetByID(id uint) (*models.ApprovalGroup, error) {
	var group models.ApprovalGroup
	err := s.db.First(&group, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *ApprovalGroupService) Create(req *SaveGroupRequest) (*models.ApprovalGroup, error) {
	group := models.ApprovalGroup{
		Name:        req.Name,
		Description: req.Description,
		Active:      true,
	}
	if req.Active != nil {
		group.Active = *req.Active
	}
	if err := s.db.Create(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *ApprovalGroupService) Update(id uint, req *SaveGroupRequest) (*models.ApprovalGroup, error) {
	group, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	group.Name = req.Name
	group.Description = req.Description
	if req.Active != nil {
		group.Active = *req.Active
	}
	if err := s.db.Save(group).Error; err != nil {
		return nil, err
	}
	return group, nil
}

// Delete removes a group and its memberships. Workflow levels referencing
// the group keep the reference; their next save fails validation if the
// removal emptied the level's approver set.
func (s *ApprovalGroupService) Delete(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", id).Delete(&models.GroupMember{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.ApprovalGroup{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrGroupNotFound
		}
		return nil
	})
}

// SetMembers replaces the group's membership with the given user ids.
func (s *ApprovalGroupService) SetMembers(groupID uint, userIDs []uint) error {
	if _, err := s.GetByID(groupID); err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMember{}).Error; err != nil {
			return err
		}
		seen := make(map[uint]bool, len(userIDs))
		for _, uid := range userIDs {
			if seen[uid] {
				continue
			}
			seen[uid] = true
			if err := tx.Create(&models.GroupMember{GroupID: groupID, UserID: uid}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// AddMember adds one user to the group, ignoring duplicates.
func (s *ApprovalGroupService) AddMember(groupID, userID uint) error {
	if _, err := s.GetByID(groupID); err != nil {
		return err
	}
	var count int64
	s.db.Model(&models.GroupMember{}).Where("group_id = ? AND user_id = ?", groupID, userID).Count(&count)
	if count > 0 {
		return nil
	}
	return s.db.Create(&models.GroupMember{GroupID: groupID, UserID: userID}).Error
}

// RemoveMember removes one user from the group.
func (s *ApprovalGroupService) RemoveMember(groupID, userID uint) error {
	return s.db.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupMember{}).Error
}

// ResolveMembers flattens the group to its current member users.
func (s *ApprovalGroupService) ResolveMembers(groupID uint) ([]models.User, error) {
	var users []models.User
	err := s.db.
		Joins("JOIN group_members ON group_members.user_id = users.id").
		Where("group_members.group_id = ?", groupID).
		Find(&users).Error
	return users, err
}
