package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sgoodman/tradecopy-api/internal/types"
	"github.com/sgoodman/tradecopy-api/pkg/response"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.RWMutex

	// Configure limits per endpoint type
	authLimit    = rate.Limit(10.0 / 60.0)  // 10 requests per minute
	tradingLimit = rate.Limit(100.0 / 60.0) // 100 requests per minute
	readLimit    = rate.Limit(600.0 / 60.0) // 600 requests per minute
)

// Cleanup old visitors periodically
func init() {
	go cleanupVisitors()
}

func getLimiter(path, clientKey string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := clientKey + ":" + path
	v, exists := visitors[key]

	if !exists {
		var limit rate.Limit
		switch {
		case strings.HasPrefix(path, "/api/v1/auth"):
			limit = authLimit
		case strings.HasPrefix(path, "/api/v1/trades"),
			strings.HasPrefix(path, "/api/v1/transactions"),
			strings.HasPrefix(path, "/api/v1/investments"):
			limit = tradingLimit
		case strings.HasPrefix(path, "/api/v1/assets"):
			limit = readLimit
		default:
			limit = rate.Inf // No limit for other paths
		}

		v = &visitor{
			limiter:  rate.NewLimiter(limit, 1), // burst of 1
			lastSeen: time.Now(),
		}
		visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		mu.Unlock()
	}
}

func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.GetString("userKey")
		if clientKey == "" {
			clientKey = c.ClientIP()
		}

		limiter := getLimiter(c.FullPath(), clientKey)
		if !limiter.Allow() {
			response.BadRequest(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth validates the bearer token and puts user_id and role into the
// request context
func JWTAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := validateAndExtractToken(c, jwtSecret)
		if err != nil {
			return
		}

		c.Set("userID", claims.userID)
		c.Set("userRole", claims.role)
		c.Set("userKey", fmt.Sprintf("user-%d", claims.userID))
		c.Next()
	}
}

// RequireAdmin rejects requests whose token does not carry the admin role.
// Must run after JWTAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("userRole") != types.RoleAdmin {
			response.Forbidden(c, "Admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user's id from the request context
func UserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get("userID")
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

type tokenClaims struct {
	userID uint
	role   string
}

func validateAndExtractToken(c *gin.Context, jwtSecret string) (*tokenClaims, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		response.Unauthorized(c, "Authorization header required")
		c.Abort()
		return nil, fmt.Errorf("authorization header required")
	}

	bearerToken := strings.Split(authHeader, " ")
	if len(bearerToken) != 2 || strings.ToLower(bearerToken[0]) != "bearer" {
		response.Unauthorized(c, "Invalid authorization header format")
		c.Abort()
		return nil, fmt.Errorf("invalid authorization header format")
	}

	token, err := jwt.Parse(bearerToken[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		c.Abort()
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		response.Unauthorized(c, "Invalid token claims")
		c.Abort()
		return nil, fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok || userID <= 0 {
		response.Unauthorized(c, "Invalid user ID in token")
		c.Abort()
		return nil, fmt.Errorf("invalid user ID in token")
	}

	role, _ := claims["role"].(string)

	return &tokenClaims{userID: uint(userID), role: role}, nil
}
