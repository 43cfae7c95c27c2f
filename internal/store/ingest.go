package store

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
)

// Ingest reads every JSONL file under root into the index. Files are read
// from the last recorded offset; truncated or rewritten files start over and
// files that disappeared are pruned.
func (s *Store) Ingest(ctx context.Context, root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sources, err := discoverSources(root)
	if err != nil {
		return fmt.Errorf("discover sources: %w", err)
	}
	if err := s.pruneMissingSources(ctx, sources); err != nil {
		return err
	}

	for _, path := range sources {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.ingestFile(ctx, path); err != nil {
			return err
		}
	}
	s.log.Info().Str("root", root).Int("files", len(sources)).Msg("ingest complete")
	return nil
}

type fileMeta struct {
	Mtime  int64
	Size   int64
	Offset int64
}

func (s *Store) ingestFile(ctx context.Context, path string) error {
	stat, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}

	meta, found, err := s.getIngestedMeta(path)
	if err != nil {
		return err
	}

	var offset int64
	needsReset := false
	if found {
		offset = meta.Offset
		if stat.Size() < meta.Offset ||
			stat.ModTime().Unix() < meta.Mtime ||
			(stat.ModTime().Unix() != meta.Mtime && stat.Size() == meta.Size) {
			needsReset = true
			offset = 0
		}
		if !needsReset && stat.Size() == meta.Offset {
			return nil
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, 0); err != nil {
		return fmt.Errorf("seek %s: %w", path, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ingest tx: %w", err)
	}
	defer tx.Rollback()

	if needsReset {
		if err := deleteSourceRows(ctx, tx, path); err != nil {
			return err
		}
	}

	w, err := newRecordWriter(ctx, tx, path)
	if err != nil {
		return err
	}
	defer w.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	// offsets count raw bytes, including any \r that ScanLines strips
	consumed := offset
	scanner.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		advance, token, err := bufio.ScanLines(data, atEOF)
		consumed += int64(advance)
		return advance, token, err
	})
	lineNo := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		lineNo++
		line := scanner.Bytes()

		rec, err := parseLine(line)
		if err != nil {
			s.log.Debug().Err(err).Str("path", path).Int("line", lineNo).Msg("skipping line")
			continue
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("ingest %s line %d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}
	if consumed > stat.Size() {
		consumed = stat.Size()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ingested_files(path, mtime, size, offset)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mtime=excluded.mtime,
			size=excluded.size,
			offset=excluded.offset
	`, path, stat.ModTime().Unix(), stat.Size(), consumed); err != nil {
		return fmt.Errorf("update ingested file metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ingest %s: %w", path, err)
	}
	s.log.Debug().Str("path", path).Int("lines", lineNo).Bool("reset", needsReset).Msg("ingested file")
	return nil
}

type recordWriter struct {
	ctx     context.Context
	session *sql.Stmt
	ensure  *sql.Stmt
	trace   *sql.Stmt
	score   *sql.Stmt
	path    string
}

func newRecordWriter(ctx context.Context, tx *sql.Tx, path string) (*recordWriter, error) {
	w := &recordWriter{ctx: ctx, path: path}
	var err error

	w.session, err = tx.PrepareContext(ctx, `
		INSERT INTO sessions(id, project_id, public, bookmarked, source_path)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			public = excluded.public,
			bookmarked = excluded.bookmarked
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare session upsert: %w", err)
	}

	w.ensure, err = tx.PrepareContext(ctx, `
		INSERT INTO sessions(id, project_id, source_path)
		VALUES(?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("prepare session insert: %w", err)
	}

	// later lines for the same trace fill in fields without clearing them
	w.trace, err = tx.PrepareContext(ctx, `
		INSERT INTO traces(id, session_id, project_id, name, ts, user_id, input, output, cost, source_path)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = COALESCE(NULLIF(excluded.name, ''), traces.name),
			ts = COALESCE(excluded.ts, traces.ts),
			user_id = COALESCE(NULLIF(excluded.user_id, ''), traces.user_id),
			input = COALESCE(NULLIF(excluded.input, ''), traces.input),
			output = COALESCE(NULLIF(excluded.output, ''), traces.output),
			cost = CASE WHEN excluded.cost > 0 THEN excluded.cost ELSE traces.cost END
	`)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("prepare trace insert: %w", err)
	}

	w.score, err = tx.PrepareContext(ctx, `
		INSERT INTO scores(id, trace_id, name, value, string_value, source, source_path)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			value = excluded.value,
			string_value = excluded.string_value,
			source = excluded.source
	`)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("prepare score insert: %w", err)
	}
	return w, nil
}

func (w *recordWriter) Write(rec record) error {
	switch rec.Kind {
	case kindSkip:
		return nil
	case kindSession:
		_, err := w.session.ExecContext(w.ctx, rec.ID, rec.ProjectID, rec.Public, rec.Bookmarked, w.path)
		return err
	case kindTrace:
		if _, err := w.ensure.ExecContext(w.ctx, rec.SessionID, rec.ProjectID, w.path); err != nil {
			return err
		}
		_, err := w.trace.ExecContext(w.ctx,
			rec.ID,
			rec.SessionID,
			rec.ProjectID,
			rec.Name,
			nullableTS(rec.TS),
			rec.UserID,
			rec.Input,
			rec.Output,
			rec.Cost,
			w.path,
		)
		return err
	case kindScore:
		_, err := w.score.ExecContext(w.ctx, rec.ID, rec.TraceID, rec.Name, rec.Value, rec.StringValue, rec.Source, w.path)
		return err
	default:
		return fmt.Errorf("unknown record kind %d", rec.Kind)
	}
}

func (w *recordWriter) Close() {
	for _, st := range []*sql.Stmt{w.session, w.ensure, w.trace, w.score} {
		if st != nil {
			_ = st.Close()
		}
	}
}

func deleteSourceRows(ctx context.Context, tx *sql.Tx, path string) error {
	stmts := []struct {
		sql  string
		what string
	}{
		{`DELETE FROM scores WHERE source_path = ?`, "scores"},
		{`DELETE FROM traces WHERE source_path = ?`, "traces"},
		{`DELETE FROM sessions WHERE source_path = ? AND id NOT IN (SELECT session_id FROM traces)`, "sessions"},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.sql, path); err != nil {
			return fmt.Errorf("clear stale %s for %s: %w", st.what, path, err)
		}
	}
	return nil
}

func (s *Store) getIngestedMeta(path string) (fileMeta, bool, error) {
	row := s.db.QueryRow(`SELECT mtime, size, offset FROM ingested_files WHERE path = ?`, path)
	var meta fileMeta
	if err := row.Scan(&meta.Mtime, &meta.Size, &meta.Offset); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fileMeta{}, false, nil
		}
		return fileMeta{}, false, fmt.Errorf("read ingested metadata for %s: %w", path, err)
	}
	return meta, true, nil
}

func (s *Store) pruneMissingSources(ctx context.Context, sources []string) error {
	keep := make(map[string]struct{}, len(sources))
	for _, path := range sources {
		keep[path] = struct{}{}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM ingested_files`)
	if err != nil {
		return fmt.Errorf("query ingested files: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return fmt.Errorf("scan ingested file row: %w", err)
		}
		if _, ok := keep[path]; !ok {
			stale = append(stale, path)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate ingested files: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stale-source cleanup tx: %w", err)
	}
	defer tx.Rollback()

	for _, path := range stale {
		if err := deleteSourceRows(ctx, tx, path); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM ingested_files WHERE path = ?`, path); err != nil {
			return fmt.Errorf("delete stale ingested metadata for %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stale-source cleanup: %w", err)
	}
	s.log.Info().Int("files", len(stale)).Msg("pruned missing sources")
	return nil
}

func nullableTS(ts *int64) any {
	if ts == nil {
		return nil
	}
	return *ts
}
