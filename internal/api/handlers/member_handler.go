package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/api/middleware"
	"github.com/roadwarden/roadwarden/internal/models"
	"github.com/roadwarden/roadwarden/internal/services"
)

const memberTokenTTL = 24 * time.Hour

// MemberHandler manages members and groups and issues member JWTs. Every
// authentication outcome is recorded as a login attempt so the login-rate
// rules have history to count.
type MemberHandler struct {
	db        *gorm.DB
	capture   *services.CaptureService
	jwtSecret string
}

func NewMemberHandler(db *gorm.DB, capture *services.CaptureService, jwtSecret string) *MemberHandler {
	return &MemberHandler{db: db, capture: capture, jwtSecret: jwtSecret}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *MemberHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var member models.Member
	err := h.db.Where("email = ?", req.Email).First(&member).Error
	if err != nil || !member.Enabled || !member.CheckPassword(req.Password) {
		var memberID *uint
		if err == nil {
			memberID = &member.ID
		}
		if recErr := h.capture.RecordLoginAttempt(memberID, c.ClientIP(), models.LoginAttemptFailed); recErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record login attempt"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := h.capture.RecordLoginAttempt(&member.ID, c.ClientIP(), models.LoginAttemptSuccess); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record login attempt"})
		return
	}

	now := time.Now()
	member.LastLogin = &now
	h.db.Model(&member).Update("last_login", now)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": member.ID,
		"exp": now.Add(memberTokenTTL).Unix(),
		"iat": now.Unix(),
	})
	signed, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign token"})
		return
	}

	c.SetCookie(middleware.AuthCookieName, signed, int(memberTokenTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"token": signed, "member": member})
}

func (h *MemberHandler) Logout(c *gin.Context) {
	c.SetCookie(middleware.AuthCookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *MemberHandler) List(c *gin.Context) {
	var members []models.Member
	if err := h.db.Preload("Groups").Order("email asc").Find(&members).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list members"})
		return
	}
	c.JSON(http.StatusOK, members)
}

type createMemberRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required"`
	GroupIDs []uint `json:"group_ids"`
}

func (h *MemberHandler) Create(c *gin.Context) {
	var req createMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member := models.Member{Email: req.Email, Name: req.Name, Enabled: true}
	if err := member.SetPassword(req.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}
	if len(req.GroupIDs) > 0 {
		if err := h.db.Find(&member.Groups, req.GroupIDs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve groups"})
			return
		}
	}
	if err := h.db.Create(&member).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create member"})
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (h *MemberHandler) ListGroups(c *gin.Context) {
	var groups []models.Group
	if err := h.db.Order("code asc").Find(&groups).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list groups"})
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (h *MemberHandler) CreateGroup(c *gin.Context) {
	var group models.Group
	if err := c.ShouldBindJSON(&group); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if group.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Code is required"})
		return
	}
	if err := h.db.Create(&group).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
		return
	}
	c.JSON(http.StatusCreated, group)
}
