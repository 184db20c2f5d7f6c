package models

import "github.com/angelmondragon/settlement-engine/pkg/enums"

// NumberSequence is the per (year, type) counter documents are numbered from.
type NumberSequence struct {
	Year       int                `gorm:"column:year;primaryKey;autoIncrement:false"`
	Type       enums.DocumentType `gorm:"column:type;primaryKey"`
	LastNumber int64              `gorm:"column:last_number;not null"`
}

func (NumberSequence) TableName() string { return "number_sequences" }
