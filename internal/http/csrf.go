package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
)

// CSRFMiddleware wraps gorilla/csrf for gin. Even without authentication a
// localhost API benefits from it: it stops DNS-rebinding pages in a browser
// from issuing mutating requests against the running instance.
func CSRFMiddleware(secret []byte, secureCookies bool) gin.HandlerFunc {
	protect := csrf.Protect(secret,
		csrf.Secure(secureCookies),
		csrf.Path("/"),
	)
	return func(c *gin.Context) {
		handled := false
		protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handled = true
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)
		if !handled {
			c.Abort()
		}
	}
}

// CSRFTokenHandler hands the shell a token for subsequent mutating requests.
func CSRFTokenHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"token": csrf.Token(c.Request)})
}
