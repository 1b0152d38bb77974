package dto

import "github.com/noah-isme/sma-classroom-api/internal/models"

// UpdateUserStatusRequest captures PATCH /users/:id/status payload.
type UpdateUserStatusRequest struct {
	Status models.UserStatus `json:"status" validate:"required,oneof=active pending blocked"`
}

// StudentProfileRequest creates or updates a student profile.
type StudentProfileRequest struct {
	ClassID    string `json:"classId" validate:"required"`
	Roll       int    `json:"roll" validate:"required,gte=1"`
	FullName   string `json:"fullName" validate:"required"`
	Phone      string `json:"phone" validate:"omitempty,max=20"`
	Age        int    `json:"age" validate:"gte=0,lte=120"`
	FatherName string `json:"fatherName"`
	Address    string `json:"address"`
	Section    string `json:"section" validate:"omitempty,max=4"`
}

// LogoutRequest optionally names the refresh token to revoke.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}
