package uploader

import (
	"math"

	"github.com/Yulian302/lfusys-services-uploads/models"
)

// ChunkCount returns ceil(size / ChunkSize).
func ChunkCount(size int64) int64 {
	if size <= 0 {
		return 0
	}
	return (size + models.ChunkSize - 1) / models.ChunkSize
}

// ChunkBounds returns the half-open byte range [start, end) of chunk i.
func ChunkBounds(i, size int64) (start, end int64) {
	start = i * models.ChunkSize
	end = min(start+models.ChunkSize, size)
	return start, end
}

// percent rounds 100*done/total and holds at 99 so 100 is only reported once
// the session has been finalized.
func percent(done, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(done) / float64(total)))
	return min(p, 99)
}

// PartList accumulates completion tokens in part order. Only chunks that fully
// succeeded are appended.
type PartList struct {
	parts []models.CompletedPart
}

func NewPartList(capacity int) *PartList {
	return &PartList{parts: make([]models.CompletedPart, 0, capacity)}
}

func (l *PartList) Append(p models.CompletedPart) {
	l.parts = append(l.parts, p)
}

func (l *PartList) Len() int {
	return len(l.parts)
}

// Parts returns a copy of the accumulated tokens.
func (l *PartList) Parts() []models.CompletedPart {
	return append([]models.CompletedPart(nil), l.parts...)
}
