package search

import "github.com/mihaimyh/gofeatured/pkg/featured"

// FeaturedScore is the ranking boost of a currently featured job.
const FeaturedScore = 100

// Document is the denormalized search projection of a job.
// Timestamps are unix seconds so the engine can sort and filter on them.
type Document struct {
	ID            string `json:"id"`
	EmployerID    string `json:"employer_id"`
	Title         string `json:"title"`
	CompanyName   string `json:"company_name"`
	Location      string `json:"location"`
	CreatedAt     int64  `json:"created_at"`
	IsActive      bool   `json:"is_active"`
	IsVerified    bool   `json:"is_verified"`
	IsFeatured    bool   `json:"is_featured"`
	FeaturedUntil int64  `json:"featured_until"`
	FeaturedScore int    `json:"featured_score"`
}

// NewDocument projects a job whose featured state was already attached.
func NewDocument(job featured.Job) Document {
	doc := Document{
		ID:          job.ID,
		EmployerID:  job.EmployerID,
		Title:       job.Title,
		CompanyName: job.CompanyName,
		Location:    job.Location,
		CreatedAt:   job.CreatedAt.Unix(),
		IsActive:    job.IsActive,
		IsVerified:  job.IsVerified,
		IsFeatured:  job.IsFeatured,
	}
	if job.FeaturedUntil != nil {
		doc.FeaturedUntil = job.FeaturedUntil.Unix()
	}
	if job.IsFeatured {
		doc.FeaturedScore = FeaturedScore
	}
	return doc
}
