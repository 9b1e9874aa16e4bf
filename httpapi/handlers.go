package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/academiafc/clubsync/auth"
	"github.com/academiafc/clubsync/core/document"
	"github.com/academiafc/clubsync/core/filter"
	"github.com/academiafc/clubsync/core/ordering"
)

// Collections the public surface may read. Everything else (students,
// payments, registrations) is admin-only.
var publicCollections = map[string]struct{}{
	document.CollectionNews:         {},
	document.CollectionAchievements: {},
	document.CollectionSchedules:    {},
	document.CollectionCategories:   {},
}

// Landing-page caps applied when the request does not pass a limit.
var publicDefaultLimits = map[string]int{
	document.CollectionNews:         3,
	document.CollectionAchievements: 6,
}

var adminCollections = map[string]struct{}{
	document.CollectionNews:          {},
	document.CollectionAchievements:  {},
	document.CollectionSchedules:     {},
	document.CollectionStudents:      {},
	document.CollectionCategories:    {},
	document.CollectionPayments:      {},
	document.CollectionRegistrations: {},
	document.CollectionSiteConfig:    {},
}

var validate = validator.New()

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.gate.SignInWithCredentials(req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "credenciales inválidas"})
		return
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		s.logger.Error("failed to sign session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (s *Server) anonymous(c *gin.Context) {
	user := s.gate.SignInAnonymously()
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (s *Server) logout(c *gin.Context) {
	s.gate.SignOut()
	c.Status(http.StatusNoContent)
}

func (s *Server) publicCollection(c *gin.Context) {
	collection := c.Param("collection")
	if _, ok := publicCollections[collection]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection"})
		return
	}

	limit := publicDefaultLimits[collection]
	if raw, ok := c.GetQuery("limit"); ok {
		if n, numeric := document.ToFloat64(raw); numeric {
			limit = int(n)
		}
	}

	docs := filter.Public(s.manager.Snapshot(collection), limit)
	c.JSON(http.StatusOK, gin.H{"items": docs})
}

// registrationRequest is the public intake form. Field names match the
// student record the registration eventually becomes.
type registrationRequest struct {
	Name     string `json:"name" validate:"required,min=3"`
	Dob      string `json:"dob" validate:"required"`
	Category string `json:"category" validate:"required"`
	Parent   string `json:"parent" validate:"required"`
	Phone    string `json:"phone" validate:"required,min=6"`
	Email    string `json:"email" validate:"omitempty,email"`
}

func (s *Server) submitRegistration(c *gin.Context) {
	var req registrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fields := document.Fields{
		"name":     req.Name,
		"dob":      req.Dob,
		"category": req.Category,
		"parent":   req.Parent,
		"phone":    req.Phone,
	}
	fields[document.FieldStatus] = document.StatusPending
	if req.Email != "" {
		fields["email"] = req.Email
	}

	if err := s.gateway.Create(c.Request.Context(), document.CollectionRegistrations, fields, 0); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "no se pudo enviar la solicitud"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": document.StatusPending})
}

func (s *Server) adminCollection(c *gin.Context) {
	collection := c.Param("collection")
	if _, ok := adminCollections[collection]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection"})
		return
	}

	criteria, err := parseCriteria(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	docs := filter.Apply(s.manager.Snapshot(collection), criteria)
	c.JSON(http.StatusOK, gin.H{"items": docs, "total": len(docs)})
}

func (s *Server) createDocument(c *gin.Context) {
	collection := c.Param("collection")
	if _, ok := adminCollections[collection]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection"})
		return
	}

	var fields document.Fields
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	delete(fields, document.FieldID)
	delete(fields, document.FieldCreatedAt)

	if err := s.gateway.Create(c.Request.Context(), collection, fields, s.manager.Count(collection)); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "create failed"})
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) updateDocument(c *gin.Context) {
	collection := c.Param("collection")
	id := c.Param("id")
	if _, ok := adminCollections[collection]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection"})
		return
	}

	var fields document.Fields
	if err := c.ShouldBindJSON(&fields); err != nil || len(fields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a non-empty field map is required"})
		return
	}
	delete(fields, document.FieldID)
	delete(fields, document.FieldCreatedAt)

	var err error
	if len(fields) == 1 {
		for field, value := range fields {
			err = s.gateway.SetField(c.Request.Context(), collection, id, field, value)
		}
	} else {
		err = s.gateway.Update(c.Request.Context(), collection, id, fields)
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "update failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteDocument(c *gin.Context) {
	collection := c.Param("collection")
	if _, ok := adminCollections[collection]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection"})
		return
	}

	if err := s.gateway.Delete(c.Request.Context(), collection, c.Param("id")); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) toggleVisible(c *gin.Context) {
	collection := c.Param("collection")
	id := c.Param("id")
	if _, ok := adminCollections[collection]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection"})
		return
	}

	current := true
	for _, doc := range s.manager.Snapshot(collection) {
		if document.IDOf(doc) == id {
			current = document.VisibleOf(doc)
			break
		}
	}

	if err := s.gateway.ToggleVisible(c.Request.Context(), collection, id, current); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "toggle failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type reorderRequest struct {
	Collection string `json:"collection" binding:"required"`
	Index      int    `json:"index"`
	Direction  string `json:"direction" binding:"required,oneof=earlier later"`
}

func (s *Server) reorder(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !document.IsOrdered(req.Collection) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection is not manually ordered"})
		return
	}

	displayed := s.manager.Snapshot(req.Collection)
	err := s.gateway.SwapOrder(c.Request.Context(), req.Collection, displayed, req.Index, ordering.Direction(req.Direction))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "reorder failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) enroll(c *gin.Context) {
	id := c.Param("id")

	var registration document.Document
	for _, doc := range s.manager.Snapshot(document.CollectionRegistrations) {
		if document.IDOf(doc) == id {
			registration = doc
			break
		}
	}
	if registration == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "registration not found"})
		return
	}

	if err := s.gateway.EnrollFromRegistration(c.Request.Context(), registration); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "enroll failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	folder := c.DefaultPostForm("folder", "general")

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer file.Close()

	url, err := s.images.Upload(c.Request.Context(), file, folder, fileHeader.Filename)
	if err != nil {
		s.logger.Error("upload failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed"})
		return
	}
	if user := currentUser(c); user != nil {
		s.logger.Info("image uploaded", zap.String("admin", user.Email), zap.String("url", url))
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

type deleteUploadRequest struct {
	URL string `json:"url" binding:"required"`
}

// deleteUpload removes a previously uploaded image, called when an admin
// replaces or deletes the document the image belonged to.
func (s *Server) deleteUpload(c *gin.Context) {
	var req deleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.images.Delete(c.Request.Context(), req.URL); err != nil {
		s.logger.Error("upload delete failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "delete failed"})
		return
	}
	if user := currentUser(c); user != nil {
		s.logger.Info("image deleted", zap.String("admin", user.Email), zap.String("url", req.URL))
	}
	c.Status(http.StatusNoContent)
}

// currentUser fetches the verified user set by requireAdmin.
func currentUser(c *gin.Context) *auth.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*auth.User); ok {
			return u
		}
	}
	return nil
}
