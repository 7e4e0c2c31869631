package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/ineyio/imgguard"
)

type checkRequest struct {
	ImageURL string `json:"imageUrl" binding:"required,url"`
	Service  string `json:"service"`
}

type checkResponse struct {
	Success  bool    `json:"success"`
	IsSafe   bool    `json:"is_safe"`
	Reason   *string `json:"reason"`
	Provider string  `json:"provider"`
	ImageURL string  `json:"imageUrl"`
	Score    float64 `json:"score"`
}

type errorResponse struct {
	Success   bool               `json:"success"`
	Error     string             `json:"error"`
	ErrorType imgguard.ErrorKind `json:"errorType"`
	Provider  string             `json:"provider,omitempty"`
	ImageURL  string             `json:"imageUrl,omitempty"`
	Details   []validationDetail `json:"details,omitempty"`
}

type validationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (s *Server) checkImage(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, validationResponse(err))
		return
	}

	v, err := s.mod.Check(c.Request.Context(), imgguard.ModerationRequest{
		ImageURL: req.ImageURL,
		Provider: req.Service,
	})
	if err != nil {
		writeError(c, err, req.ImageURL)
		return
	}

	resp := checkResponse{
		Success:  true,
		IsSafe:   v.IsSafe,
		Provider: v.Provider,
		ImageURL: v.ImageURL,
		Score:    v.Score,
	}
	if !v.IsSafe {
		reason := string(v.Reason)
		resp.Reason = &reason
	}
	c.JSON(http.StatusOK, resp)
}

type usageLimits struct {
	Daily   *int64 `json:"daily"`
	Monthly int64  `json:"monthly"`
}

type usageEntry struct {
	Daily   int64       `json:"daily"`
	Monthly int64       `json:"monthly"`
	Limits  usageLimits `json:"limits"`
}

func (s *Server) usage(c *gin.Context) {
	stats, err := s.mod.Usage(c.Request.Context())
	if err != nil {
		writeError(c, err, "")
		return
	}

	data := make(map[string]usageEntry, len(stats))
	for _, u := range stats {
		data[u.Provider] = usageEntry{
			Daily:   u.Daily,
			Monthly: u.Monthly,
			Limits:  usageLimits{Daily: u.Limits.Daily, Monthly: u.Limits.Monthly},
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

type resetRequest struct {
	ServiceName string `json:"serviceName" binding:"required"`
	Month       string `json:"month" binding:"required"`
}

func (s *Server) resetUsage(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, validationResponse(err))
		return
	}

	err := s.mod.ResetUsage(c.Request.Context(), req.ServiceName, req.Month)
	if errors.Is(err, imgguard.ErrUsageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Usage record not found"})
		return
	}
	if err != nil {
		writeError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Usage reset successfully",
		"data":    gin.H{"serviceName": req.ServiceName, "month": req.Month},
	})
}

func writeError(c *gin.Context, err error, imageURL string) {
	kind := imgguard.KindOf(err)
	var me *imgguard.ModerationError
	provider := ""
	if errors.As(err, &me) {
		provider = me.Provider
		if me.ImageURL != "" {
			imageURL = me.ImageURL
		}
	}

	msg := err.Error()
	if kind == imgguard.KindInternal {
		msg = "Internal server error"
	}
	c.JSON(imgguard.StatusCode(err), errorResponse{
		Success:   false,
		Error:     msg,
		ErrorType: kind,
		Provider:  provider,
		ImageURL:  imageURL,
	})
}

func validationResponse(err error) errorResponse {
	resp := errorResponse{
		Success:   false,
		Error:     "Validation error",
		ErrorType: imgguard.KindValidation,
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			resp.Details = append(resp.Details, validationDetail{
				Field:   fe.Field(),
				Message: validationMessage(fe),
			})
		}
		return resp
	}
	resp.Details = []validationDetail{{Field: "body", Message: err.Error()}}
	return resp
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "url":
		return "Invalid URL format"
	default:
		return "Invalid value"
	}
}
