package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"healthtrends-server/internal/identity"
	"healthtrends-server/internal/utils"
)

// AdminHandler handles administrative operations that reach out to the
// external identity provider.
type AdminHandler struct {
	Identity identity.Client
	Logger   *zap.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(idp identity.Client, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{Identity: idp, Logger: logger}
}

// AssignRoleRequest represents the request body for a role assignment.
type AssignRoleRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required"`
}

// AssignRole handles POST /admin/assign-role: it resolves the user at the
// identity provider by email and adds them to the requested group.
func (h *AdminHandler) AssignRole(c *gin.Context) {
	var req AssignRoleRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	username, err := h.Identity.FindUserByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, identity.ErrUserNotFound) {
		utils.NotFound(c, "User not found")
		return
	}
	if err != nil {
		h.Logger.Error("identity provider lookup failed", zap.String("email", req.Email), zap.Error(err))
		utils.InternalServerError(c, "Identity provider lookup failed")
		return
	}

	if err := h.Identity.AddUserToGroup(c.Request.Context(), username, req.Role); err != nil {
		h.Logger.Error("role assignment failed",
			zap.String("username", username),
			zap.String("role", req.Role),
			zap.Error(err),
		)
		utils.InternalServerError(c, "Failed to assign role")
		return
	}

	utils.Success(c, "Role assigned", gin.H{"username": username, "role": req.Role})
}
