package httpapi

import (
	"coldcall-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts the session routes on an authenticated group.
// Viewers may open and read sessions; every call-driving route needs a
// calling role. Notes routes stay open so viewers get the read-only error.
func (h Handlers) Register(g *gin.RouterGroup) {
	g.Use(rbac.RequireWorkspace())
	caller := rbac.RequireAnyRole(rbac.CallingRoles...)

	g.POST("/sessions", h.StartSession)

	s := g.Group("/sessions/:id", h.loadSession())
	{
		s.GET("", h.GetSession)
		s.GET("/stats", h.GetStats)
		s.DELETE("", h.CloseSession)

		s.POST("/calls/start", caller, h.StartCall)
		s.POST("/calls/end", caller, h.EndCall)
		s.PUT("/outcome", caller, h.inFlight("outcome"), h.SelectOutcome)
		s.PUT("/not-interested-reason", caller, h.inFlight("reason"), h.SetNotInterestedReason)

		s.PUT("/followup", caller, h.SetFollowUp)
		s.POST("/followup/save", caller, h.inFlight("followup"), h.SaveFollowUp)
		s.POST("/followup/calendar", caller, h.inFlight("calendar"), h.AddFollowUpToCalendar)

		s.PUT("/notes", h.EditNotes)
		s.POST("/notes/save", h.inFlight("notes"), h.SaveNotes)

		s.POST("/skip", caller, h.inFlight("advance"), h.Skip)
		s.POST("/next", caller, h.inFlight("advance"), h.Next)
	}
}
