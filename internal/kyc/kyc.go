package kyc

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/sgoodman/tradecopy-api/internal/types"
	"github.com/sgoodman/tradecopy-api/pkg/middleware"
	"github.com/sgoodman/tradecopy-api/pkg/response"
	"gorm.io/gorm"
)

var (
	ErrAlreadyReviewed   = errors.New("document already reviewed")
	ErrInvalidDocumentID = errors.New("invalid document id")
)

// Service handles KYC document submission and admin review. Document
// storage itself is external; only a reference to the stored artifact is
// kept here.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// SubmitRequest is the payload for document submission
type SubmitRequest struct {
	DocumentType string `json:"document_type" binding:"required"`
	DocumentRef  string `json:"document_ref" binding:"required"`
}

// ReviewRequest is the payload for an admin review decision
type ReviewRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

// SubmitDocument records a verification document and moves the user's KYC
// status to pending while it awaits review.
func (s *Service) SubmitDocument(userID uint, req SubmitRequest) (*types.KycDocument, error) {
	doc := &types.KycDocument{
		UserID:             userID,
		DocumentType:       req.DocumentType,
		DocumentRef:        req.DocumentRef,
		VerificationStatus: types.DocumentPending,
	}

	tx := s.db.Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(doc).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Model(&types.User{}).
		Where("id = ? AND kyc_status = ?", userID, types.KycUnverified).
		Update("kyc_status", types.KycPending).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	log.Info().
		Uint("document_id", doc.ID).
		Uint("user_id", userID).
		Str("document_type", doc.DocumentType).
		Msg("kyc document submitted")

	return doc, nil
}

// ReviewDocument records the admin decision. Approval drives the owning
// user's KYC status to verified; rejection drops it back to unverified so
// the user can resubmit.
func (s *Service) ReviewDocument(documentID uint, req ReviewRequest) (*types.KycDocument, error) {
	var doc types.KycDocument
	if err := s.db.First(&doc, documentID).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}

	if doc.VerificationStatus != types.DocumentPending {
		return nil, ErrAlreadyReviewed
	}

	now := time.Now()
	doc.Notes = req.Notes
	doc.ReviewedAt = &now
	doc.UpdatedAt = now

	userStatus := types.KycUnverified
	if req.Approve {
		doc.VerificationStatus = types.DocumentApproved
		userStatus = types.KycVerified
	} else {
		doc.VerificationStatus = types.DocumentRejected
	}

	tx := s.db.Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Save(&doc).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Model(&types.User{}).Where("id = ?", doc.UserID).
		Update("kyc_status", userStatus).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	log.Info().
		Uint("document_id", doc.ID).
		Uint("user_id", doc.UserID).
		Str("decision", doc.VerificationStatus).
		Msg("kyc document reviewed")

	return &doc, nil
}

// ListUserDocuments returns a user's submitted documents
func (s *Service) ListUserDocuments(userID uint) ([]types.KycDocument, error) {
	var docs []types.KycDocument
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// ListPendingDocuments returns all documents awaiting review
func (s *Service) ListPendingDocuments() ([]types.KycDocument, error) {
	var docs []types.KycDocument
	if err := s.db.Where("verification_status = ?", types.DocumentPending).
		Order("created_at ASC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// GinHandlers contains HTTP handlers for KYC endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SubmitDocumentHandler handles POST requests to submit a KYC document
func (h *GinHandlers) SubmitDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication")
			return
		}

		var req SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		doc, err := h.service.SubmitDocument(userID, req)
		response.Handle(c, doc, err)
	}
}

// ListDocumentsHandler handles GET requests for the user's documents
func (h *GinHandlers) ListDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication")
			return
		}

		docs, err := h.service.ListUserDocuments(userID)
		response.Handle(c, docs, err)
	}
}

// ListPendingDocumentsHandler handles GET requests for the review queue
// Admin-only endpoint
func (h *GinHandlers) ListPendingDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		docs, err := h.service.ListPendingDocuments()
		response.Handle(c, docs, err)
	}
}

// ReviewDocumentHandler handles POST requests with a review decision
// Admin-only endpoint
// URL parameter: document_id
func (h *GinHandlers) ReviewDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID, err := strconv.ParseUint(c.Param("document_id"), 10, 32)
		if err != nil || documentID == 0 {
			response.BadRequest(c, ErrInvalidDocumentID.Error())
			return
		}

		var req ReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		doc, err := h.service.ReviewDocument(uint(documentID), req)
		if errors.Is(err, ErrAlreadyReviewed) {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, doc, err)
	}
}
