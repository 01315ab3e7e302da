package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/cocode/internal/services"
)

// AuditLog records successful and failed write requests to the activity log.
// Handlers set ContextProjectID to attach the entry to a project.
func AuditLog(activity *services.ActivityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != "POST" && method != "PUT" && method != "DELETE" {
			c.Next()
			return
		}

		var bodySnippet string
		if c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bodySnippet = string(bodyBytes)
			if len(bodySnippet) > 2000 {
				bodySnippet = bodySnippet[:2000] + "...[truncated]"
			}
			bodySnippet = maskSensitiveFields(bodySnippet)
		}

		c.Next()

		status := c.Writer.Status()
		activity.Record(services.ActivityEntry{
			ProjectID: c.GetString(ContextProjectID),
			UserID:    GetUserID(c),
			Action:    routeAction(c.FullPath(), method),
			Message:   formatAuditMessage(GetEmail(c), method, c.Request.URL.Path, status),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Extra: map[string]interface{}{
				"method": method,
				"path":   c.Request.URL.Path,
				"status": status,
				"body":   bodySnippet,
			},
		})
	}
}

// routeAction turns a route pattern into an action name,
// e.g. "/projects/add-user" becomes "projects.add-user".
func routeAction(fullPath, method string) string {
	path := strings.Trim(fullPath, "/")
	if path == "" {
		return strings.ToLower(method)
	}
	parts := strings.Split(path, "/")
	kept := parts[:0]
	for _, p := range parts {
		if strings.HasPrefix(p, ":") || strings.HasPrefix(p, "*") {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, ".")
}

func formatAuditMessage(email, method, path string, status int) string {
	if email == "" {
		email = "anonymous"
	}
	outcome := "Failed"
	if status >= 200 && status < 300 {
		outcome = "OK"
	}
	return fmt.Sprintf("[Audit] %s %s %s -> %s", email, method, path, outcome)
}

var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"refresh_token": {},
	"refreshtoken":  {},
	"secret":        {},
}

// maskSensitiveFields masks credential values in a JSON body.
// Bodies that are not JSON objects are dropped.
func maskSensitiveFields(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return "[unparsed]"
	}
	maskValue(doc)
	out, err := json.Marshal(doc)
	if err != nil {
		return "[unparsed]"
	}
	return string(out)
}

func maskValue(v interface{}) {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, inner := range t {
			if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
				t[k] = "***"
				continue
			}
			maskValue(inner)
		}
	case []interface{}:
		for _, inner := range t {
			maskValue(inner)
		}
	}
}
