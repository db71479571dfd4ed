package util

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry 表示 token 中没有 exp 声明
var ErrNoExpiry = errors.New("token has no exp claim")

// TokenExpiry 读取 token 的 exp 声明，不校验签名
// 签名由外部 API 校验，这里只用于客户端判断镜像 token 是否已过期
func TokenExpiry(tokenStr string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return time.Time{}, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// TokenExpired 判断 token 在 now 时刻是否已过期
// 非 JWT 格式或没有 exp 的 token 视为未过期（交给外部 API 判断）
func TokenExpired(tokenStr string, now time.Time) bool {
	exp, err := TokenExpiry(tokenStr)
	if err != nil {
		return false
	}
	return !now.Before(exp)
}

func ExtractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.Split(auth, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
