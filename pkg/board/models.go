package board

import "time"

// BoardMapping relates an external board to the account that owns it locally.
// There is at most one row per board; the last writer wins.
type BoardMapping struct {
	BoardID   string    `gorm:"primaryKey;column:board_id;type:varchar(64)"`
	OwnerID   string    `gorm:"column:owner_id;type:varchar(128);index:idx_board_owner;not null"`
	BoardName string    `gorm:"column:board_name"`
	BoardDesc string    `gorm:"column:board_desc;type:text"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (BoardMapping) TableName() string { return "board_mappings" }
