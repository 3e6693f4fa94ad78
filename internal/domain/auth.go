package domain

type LoginDTO struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponseDTO struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"` // hiện chỉ có "admin" cho operator
}
