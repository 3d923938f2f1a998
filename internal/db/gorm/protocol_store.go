package gorm

import (
	"context"
	"database/sql"
	"strings"

	"gorm.io/gorm"

	"github.com/rescuelabs/protocold/pkg/models"
)

// ChunkInput is one passage to index for retrieval.
type ChunkInput struct {
	ProtocolNumber string
	ProtocolTitle  string
	Section        string
	Content        string
}

// ProtocolStore indexes and searches protocol passages. Search is FTS5
// with a LIKE fallback; chunks with a NULL agency are statewide/global
// and visible to every tenant scope.
type ProtocolStore struct {
	db    *gorm.DB
	rawDB *sql.DB
}

// NewProtocolStore creates a new protocol store.
func NewProtocolStore(store *Store) *ProtocolStore {
	return &ProtocolStore{db: store.DB, rawDB: store.GetRawDB()}
}

// InsertChunks indexes passages for an agency. agencyID 0 indexes them
// as global (visible to all tenants).
func (s *ProtocolStore) InsertChunks(ctx context.Context, agencyID int64, chunks []ChunkInput) (int64, error) {
	var inserted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range chunks {
			dbChunk := &ProtocolChunk{
				AgencyID:       sqlNullInt64(agencyID),
				ProtocolNumber: c.ProtocolNumber,
				ProtocolTitle:  c.ProtocolTitle,
				Section:        sqlNullString(c.Section),
				Content:        c.Content,
			}
			if err := tx.Create(dbChunk).Error; err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	return inserted, err
}

// CountChunks returns the number of indexed chunks for an agency
// (global chunks included).
func (s *ProtocolStore) CountChunks(ctx context.Context, agencyID int64) (int64, error) {
	var count int64
	query := s.db.WithContext(ctx).Model(&ProtocolChunk{})
	if agencyID > 0 {
		query = query.Where("agency_id = ? OR agency_id IS NULL", agencyID)
	}
	err := query.Count(&count).Error
	return count, err
}

// SearchChunksFTS performs full-text search on protocol chunks using FTS5,
// ranked best match first. Falls back to LIKE search if FTS5 fails.
// Similarity is derived from the bm25 rank, normalized into [0,1).
func (s *ProtocolStore) SearchChunksFTS(ctx context.Context, query string, agencyID int64, limit int) ([]models.Passage, error) {
	if limit <= 0 {
		limit = 10
	}

	keywords := extractKeywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	// FTS5 query: keyword1 OR keyword2 OR keyword3
	ftsTerms := strings.Join(keywords, " OR ")

	ftsQuery := `
		SELECT c.id, c.protocol_number, c.protocol_title, COALESCE(c.section, ''), c.content, -rank
		FROM protocol_chunks c
		JOIN protocol_chunks_fts fts ON c.id = fts.rowid
		WHERE protocol_chunks_fts MATCH ?
		  AND (? = 0 OR c.agency_id = ? OR c.agency_id IS NULL)
		ORDER BY rank
		LIMIT ?
	`

	rows, err := s.rawDB.QueryContext(ctx, ftsQuery, ftsTerms, agencyID, agencyID, limit)
	if err != nil {
		// FTS failed, try LIKE fallback
		return s.searchChunksLike(ctx, keywords, agencyID, limit)
	}
	defer rows.Close()

	passages, err := scanPassageRows(rows)
	if err != nil {
		return nil, err
	}

	if len(passages) == 0 {
		return s.searchChunksLike(ctx, keywords, agencyID, limit)
	}

	return passages, nil
}

// searchChunksLike performs fallback LIKE search via GORM. Similarity is
// the fraction of keywords that matched, which keeps scores comparable
// with the bm25-derived ones.
func (s *ProtocolStore) searchChunksLike(ctx context.Context, keywords []string, agencyID int64, limit int) ([]models.Passage, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []interface{}
	for _, kw := range keywords {
		pattern := "%" + kw + "%"
		conditions = append(conditions, "(protocol_title LIKE ? OR section LIKE ? OR content LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}

	whereClause := "(" + strings.Join(conditions, " OR ") + ")"
	query := s.db.WithContext(ctx).Model(&ProtocolChunk{}).Where(whereClause, args...)
	if agencyID > 0 {
		query = query.Where("agency_id = ? OR agency_id IS NULL", agencyID)
	}

	var dbChunks []ProtocolChunk
	if err := query.Limit(limit).Find(&dbChunks).Error; err != nil {
		return nil, err
	}

	passages := make([]models.Passage, 0, len(dbChunks))
	for _, c := range dbChunks {
		matched := 0
		haystack := strings.ToLower(c.ProtocolTitle + " " + c.Section.String + " " + c.Content)
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				matched++
			}
		}
		passages = append(passages, models.Passage{
			ID:             c.ID,
			ProtocolNumber: c.ProtocolNumber,
			ProtocolTitle:  c.ProtocolTitle,
			Section:        c.Section.String,
			Content:        c.Content,
			Similarity:     float64(matched) / float64(len(keywords)),
		})
	}
	return passages, nil
}

// extractKeywords extracts keywords from a search query.
func extractKeywords(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	var keywords []string

	commonWords := map[string]bool{
		"the": true, "and": true, "or": true, "but": true, "in": true,
		"on": true, "at": true, "to": true, "for": true, "of": true,
		"with": true, "by": true, "from": true, "as": true, "is": true,
		"was": true, "are": true, "were": true, "be": true, "been": true,
		"being": true, "have": true, "has": true, "had": true, "do": true,
		"does": true, "did": true, "will": true, "would": true, "should": true,
		"could": true, "may": true, "might": true, "must": true, "can": true,
	}

	for _, word := range words {
		// Skip short words and common words
		if len(word) <= 2 || commonWords[word] {
			continue
		}
		keywords = append(keywords, strings.Trim(word, ".,?!:;\"'()"))
	}

	return keywords
}

// scanPassageRows scans passages from raw FTS rows. The sixth column is
// the bm25 magnitude (larger = better), mapped to similarity in [0,1)
// via m/(m+1).
func scanPassageRows(rows *sql.Rows) ([]models.Passage, error) {
	var passages []models.Passage
	for rows.Next() {
		var p models.Passage
		var rankMagnitude float64
		if err := rows.Scan(&p.ID, &p.ProtocolNumber, &p.ProtocolTitle, &p.Section, &p.Content, &rankMagnitude); err != nil {
			return nil, err
		}
		if rankMagnitude < 0 {
			rankMagnitude = 0
		}
		p.Similarity = rankMagnitude / (rankMagnitude + 1)
		passages = append(passages, p)
	}
	return passages, rows.Err()
}
