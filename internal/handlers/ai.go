package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/cocode/internal/services"
	"github.com/huangang/cocode/pkg/response"
)

type AIHandler struct {
	generator services.Generator
}

func NewAIHandler(generator services.Generator) *AIHandler {
	return &AIHandler{generator: generator}
}

// GetResult returns the model's raw reply for a prompt
// GET /ai/get-result?prompt=...
func (h *AIHandler) GetResult(c *gin.Context) {
	prompt := c.Query("prompt")
	if strings.TrimSpace(prompt) == "" {
		response.Error(c, response.NewValidation(response.FieldError{Field: "prompt", Message: "prompt is required"}))
		return
	}

	result, err := h.generator.Generate(c.Request.Context(), prompt)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.String(http.StatusOK, result)
}
