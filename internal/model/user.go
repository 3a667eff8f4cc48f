package model

import (
	"math"
	"time"
)

// User はサービス利用ユーザーを表す。
// identityはメールアドレスで、システム全体の自然キーとなる。
type User struct {
	Email     string
	Premium   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NotificationSettings はユーザーの通知設定を表す。
type NotificationSettings struct {
	Email       string
	EventNotify bool
	GymNotify   bool
}

// Profile はユーザーの身体プロフィールを表す。
type Profile struct {
	Email  string
	Name   string
	Age    int
	Height int     // cm
	Weight float64 // kg
	BMI    float64
}

// CalculateBMI は体重(kg)と身長(cm)からBMIを算出し、小数点以下4桁に丸める。
// 身長が0以下の場合は0を返す。
func CalculateBMI(weight float64, height int) float64 {
	if height <= 0 {
		return 0
	}
	bmi := weight / (float64(height*height) * 0.0001)
	return math.Round(bmi*10000) / 10000
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time
}
