package delivery

import (
	"errors"
	"net/http"

	authdomain "friendlymail-backend/internal/auth/domain"
	emaildomain "friendlymail-backend/internal/email/domain"
	emaildto "friendlymail-backend/internal/email/dto"
	"friendlymail-backend/internal/email/usecase"

	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	mailboxUsecase usecase.MailboxUsecase
}

func NewAccountHandler(mailboxUsecase usecase.MailboxUsecase) *AccountHandler {
	return &AccountHandler{
		mailboxUsecase: mailboxUsecase,
	}
}

func currentUser(c *gin.Context) *authdomain.User {
	user, _ := c.MustGet("user").(*authdomain.User)
	return user
}

func (h *AccountHandler) ListAccounts(c *gin.Context) {
	user := currentUser(c)
	accounts, err := h.mailboxUsecase.ListAccounts(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, emaildto.AccountsResponse{Accounts: accounts})
}

func (h *AccountHandler) ConnectAccount(c *gin.Context) {
	user := currentUser(c)

	var req emaildto.ConnectAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account := &emaildomain.EmailAccount{
		UserID:       user.ID,
		Provider:     req.Provider,
		EmailAddress: req.EmailAddress,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenExpiry:  req.TokenExpiry,
	}
	if err := h.mailboxUsecase.ConnectAccount(c.Request.Context(), account); err != nil {
		if errors.Is(err, emaildomain.ErrUnknownProvider) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, account)
}

// SyncAccount pulls new mail for one account without running the assistant.
func (h *AccountHandler) SyncAccount(c *gin.Context) {
	user := currentUser(c)
	account, err := h.mailboxUsecase.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if account == nil || account.UserID != user.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	emails, err := h.mailboxUsecase.FetchNewMessages(c.Request.Context(), account)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, emaildomain.ErrTokenExpired) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, emaildto.SyncResponse{AccountID: account.ID, New: len(emails), Emails: emails})
}
