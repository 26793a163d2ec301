package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ActorHeader carries the id of the authenticated user. Authentication
	// happens upstream; this service trusts the header.
	ActorHeader = "X-User-ID"

	actorKey = "actor_id"
)

// Actor parses ActorHeader when present and stores it on the context.
// A malformed id is rejected; a missing one is left for handlers to decide.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(ActorHeader)
		if raw == "" {
			c.Next()
			return
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Invalid " + ActorHeader + " header",
			})
			return
		}

		c.Set(actorKey, id)
		c.Next()
	}
}

// RequireActor rejects requests without an acting user.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ActorID(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": ActorHeader + " header is required",
			})
			return
		}
		c.Next()
	}
}

// ActorID returns the acting user set by Actor.
func ActorID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
