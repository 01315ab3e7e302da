package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/cocode/internal/middleware"
	"github.com/huangang/cocode/internal/services"
	"github.com/huangang/cocode/pkg/response"
)

type ProjectHandler struct {
	projectService  *services.ProjectService
	activityService *services.ActivityService
}

func NewProjectHandler(projectService *services.ProjectService, activityService *services.ActivityService) *ProjectHandler {
	return &ProjectHandler{
		projectService:  projectService,
		activityService: activityService,
	}
}

// Create creates a project owned by the current user
// POST /projects/create
func (h *ProjectHandler) Create(c *gin.Context) {
	var req services.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	project, err := h.projectService.Create(req.Name, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.ContextProjectID, project.ID)
	response.Created(c, gin.H{"project": project})
}

// All returns the projects the current user belongs to
// GET /projects/all
func (h *ProjectHandler) All(c *gin.Context) {
	projects, err := h.projectService.ListForUser(middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"projects": projects})
}

// AddUser adds collaborators to a project
// PUT /projects/add-user
func (h *ProjectHandler) AddUser(c *gin.Context) {
	var req services.AddUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	c.Set(middleware.ContextProjectID, req.ProjectID)
	project, err := h.projectService.AddCollaborators(req.ProjectID, req.Users, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"project": project})
}

// Get returns one project with its members
// GET /projects/get-project/:projectId
func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.projectService.Get(c.Param("projectId"), middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"project": project})
}

// UpdateFileTree replaces the project's files
// PUT /projects/update-file-tree
func (h *ProjectHandler) UpdateFileTree(c *gin.Context) {
	var req services.UpdateFileTreeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	c.Set(middleware.ContextProjectID, req.ProjectID)
	project, err := h.projectService.UpdateFileTree(req.ProjectID, req.FileTree, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"project": project})
}

// Activity pages through a project's activity log
// GET /projects/activity/:projectId
func (h *ProjectHandler) Activity(c *gin.Context) {
	projectID := c.Param("projectId")
	if _, err := h.projectService.Get(projectID, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	var req services.ActivityListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	resp, err := h.activityService.ListForProject(projectID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}
