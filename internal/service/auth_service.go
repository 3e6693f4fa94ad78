package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/jeswintom22/ClassSight/internal/config"
	"github.com/jeswintom22/ClassSight/internal/domain"
)

var ErrInvalidCredentials = errors.New("tên đăng nhập hoặc mật khẩu không đúng")
var ErrTokenInvalid = errors.New("token không hợp lệ hoặc đã hết hạn")

// AuthService xác thực operator cho các API admin (xoá cache, xem stats).
// Hệ thống chỉ có một operator cấu hình qua env (username + bcrypt hash),
// không có bảng user — học sinh dùng endpoint phân tích không cần đăng nhập.
type AuthService struct {
	operatorUsername     string
	operatorPasswordHash string
	jwtSecret            string
	jwtExpiration        time.Duration
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{
		operatorUsername:     cfg.OperatorUsername,
		operatorPasswordHash: cfg.OperatorPasswordHash,
		jwtSecret:            cfg.JWTSecret,
		jwtExpiration:        cfg.JWTExpirationHours,
	}
}

func (s *AuthService) Login(dto domain.LoginDTO) (*domain.AuthResponseDTO, error) {
	// OPERATOR_PASSWORD_HASH chưa cấu hình thì không ai đăng nhập được
	if s.operatorPasswordHash == "" || dto.Username != s.operatorUsername {
		return nil, ErrInvalidCredentials
	}

	err := bcrypt.CompareHashAndPassword([]byte(s.operatorPasswordHash), []byte(dto.Password))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	expirationTime := time.Now().Add(s.jwtExpiration)
	customClaims := jwt.MapClaims{
		"sub":      dto.Username,
		"exp":      expirationTime.Unix(),
		"iat":      time.Now().Unix(),
		"role":     "admin",
		"username": dto.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, customClaims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("lỗi tạo token: %w", err)
	}

	return &domain.AuthResponseDTO{
		Token:    tokenString,
		Username: dto.Username,
		Role:     "admin",
	}, nil
}

// ValidateToken dùng cho middleware
func (s *AuthService) ValidateToken(tokenString string) (*jwt.Token, jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("phương thức ký không mong muốn: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, nil, fmt.Errorf("%w: token có định dạng sai", ErrTokenInvalid)
		} else if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, nil, fmt.Errorf("%w: token đã hết hạn", ErrTokenInvalid)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if !token.Valid {
		return nil, nil, ErrTokenInvalid
	}
	return token, claims, nil
}
