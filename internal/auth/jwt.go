// Package auth authenticates the chat transport calling the gRPC API.
//
// Tokens are HS256 JWTs. A token with a user id may act only for that user;
// a token without one is a transport token and may act for anyone.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type Claims struct {
	UserID uint64 `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

var ErrMissingToken = errors.New("missing bearer token")

// Issue signs a token valid for ttl. userID 0 issues a transport token.
func Issue(secret, issuer string, userID uint64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse validates tokenString and returns its claims.
func Parse(secret, issuer, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// FromContext returns the claims attached by the interceptor.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}

// WithClaims attaches claims to ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// Authorize fails when the caller is bound to a different user than userID.
// Without claims (auth disabled) everything is allowed.
func Authorize(ctx context.Context, userID uint64) error {
	c, ok := FromContext(ctx)
	if !ok || c.UserID == 0 || c.UserID == userID {
		return nil
	}
	return status.Error(codes.PermissionDenied, "token does not belong to this user")
}

// UnaryInterceptor rejects calls without a valid bearer token.
// Health checks stay open so orchestrators can probe the server.
func UnaryInterceptor(secret, issuer string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return handler(ctx, req)
		}

		raw, err := bearer(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		claims, err := Parse(secret, issuer, raw)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return handler(WithClaims(ctx, claims), req)
	}
}

func bearer(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrMissingToken
	}
	for _, v := range md.Get("authorization") {
		if after, found := strings.CutPrefix(v, "Bearer "); found && after != "" {
			return after, nil
		}
	}
	return "", ErrMissingToken
}
