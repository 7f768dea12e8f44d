package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clips-service/internal/gql"
)

// GraphQLHandler serves request/response GraphQL over HTTP.
type GraphQLHandler struct {
	executor *gql.Executor
}

// NewGraphQLHandler constructs a GraphQLHandler.
func NewGraphQLHandler(executor *gql.Executor) *GraphQLHandler {
	return &GraphQLHandler{executor: executor}
}

type graphqlRequest struct {
	Query         string                 `json:"query" binding:"required"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// Post handles POST /graphql.
func (h *GraphQLHandler) Post(c *gin.Context) {
	var req graphqlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []gin.H{{"message": err.Error()}}})
		return
	}

	kind, _, err := h.executor.ClassifyOperation(req.Query, req.OperationName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []gin.H{{"message": err.Error()}}})
		return
	}
	if kind == gql.OperationSubscription {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []gin.H{{"message": "subscriptions must use the websocket transport"}}})
		return
	}

	result := h.executor.Execute(c.Request.Context(), req.Query, req.Variables, req.OperationName)
	c.JSON(http.StatusOK, result)
}

// Health handles GET /healthz.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
