package domain

// Circle is a geographic grouping that scopes listings and communities.
type Circle struct {
	ID              string   `gorm:"column:id;primaryKey" json:"id"`
	Name            string   `gorm:"column:name;not null" json:"name"`
	ZipCenter       string   `gorm:"column:zip_center" json:"zip_center"`
	ImageURL        string   `gorm:"column:image_url" json:"image_url"`
	DefaultDistance *float64 `gorm:"column:default_distance" json:"default_distance,omitempty"`
}

func (Circle) TableName() string {
	return "circle"
}
