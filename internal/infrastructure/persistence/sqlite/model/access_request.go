package model

import "time"

type AccessRequest struct {
	ID             string    `gorm:"column:id;primaryKey;type:text"`
	GithubUsername string    `gorm:"column:github_username;type:text"`
	Email          string    `gorm:"column:email;type:text"`
	Status         string    `gorm:"column:status;type:text;not null;index"`
	DockerToken    string    `gorm:"column:docker_token;type:text"`
	ValorVenda     *float64  `gorm:"column:valor_venda;type:numeric"`
	Observacao     string    `gorm:"column:observacao;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;index"`
}

func (AccessRequest) TableName() string {
	return "access_requests"
}
