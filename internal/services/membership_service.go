package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/models"
)

var ErrMemberNotFound = errors.New("member not found")

// MembershipService answers the group and permission questions the
// evaluator's exclusion checks ask. It is a thin lookup over the member and
// group tables.
type MembershipService struct {
	db *gorm.DB
}

func NewMembershipService(db *gorm.DB) *MembershipService {
	return &MembershipService{db: db}
}

func (s *MembershipService) memberGroups(memberID uint) ([]models.Group, error) {
	var member models.Member
	if err := s.db.Preload("Groups").First(&member, memberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return member.Groups, nil
}

// InGroup reports whether the member belongs to the group with the given code.
func (s *MembershipService) InGroup(memberID uint, groupCode string) (bool, error) {
	if strings.TrimSpace(groupCode) == "" {
		return false, nil
	}
	groups, err := s.memberGroups(memberID)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if strings.EqualFold(g.Code, groupCode) {
			return true, nil
		}
	}
	return false, nil
}

// HasPermission reports whether any of the member's groups carries the
// permission code.
func (s *MembershipService) HasPermission(memberID uint, permissionCode string) (bool, error) {
	if strings.TrimSpace(permissionCode) == "" {
		return false, nil
	}
	groups, err := s.memberGroups(memberID)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if g.HasPermission(permissionCode) {
			return true, nil
		}
	}
	return false, nil
}
