package middleware

import (
	"database/sql"
	"errors"
	"net/http"

	"diary-assistant/database"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const SessionCookieName = "diary_assistant_session"
const CookieMaxAge = 30 * 24 * 60 * 60 // 30 days

// SessionMiddleware resolves the chat session for the request, creating one
// when the browser has no cookie or references a session that no longer
// exists.
func SessionMiddleware(store *database.HistoryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(SessionCookieName)
		var sessionID uuid.UUID

		if err == http.ErrNoCookie {
			session, err := store.CreateSession(c.Request.Context(), "")
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
				return
			}
			sessionID = session.ID
			c.SetCookie(SessionCookieName, sessionID.String(), CookieMaxAge, "/", "", false, true)
		} else if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to parse session cookie"})
			return
		} else {
			sessionID, err = uuid.Parse(cookie)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
				return
			}
			if _, err := store.GetSession(c.Request.Context(), sessionID); err != nil {
				if !errors.Is(err, sql.ErrNoRows) {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
					return
				}
				// Stale cookie for a deleted session, start over.
				session, err := store.CreateSession(c.Request.Context(), "")
				if err != nil {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
					return
				}
				sessionID = session.ID
				c.SetCookie(SessionCookieName, sessionID.String(), CookieMaxAge, "/", "", false, true)
			}
		}

		c.Set("sessionID", sessionID)
		c.Next()
	}
}
