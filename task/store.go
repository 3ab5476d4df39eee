package task

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"modernc.org/sqlite"
)

func init() {
	// fold(x) gives SQL the same Unicode case folding as foldText.
	if err := sqlite.RegisterDeterministicScalarFunction("fold", 1, sqlFold); err != nil {
		panic(fmt.Sprintf("register sqlite fold: %v", err))
	}
}

func foldText(s string) string { return cases.Fold().String(s) }

func sqlFold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return foldText(v), nil
	case []byte:
		return foldText(string(v)), nil
	default:
		return v, nil
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS task_lists (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL,
	name       TEXT NOT NULL,
	icon       TEXT NOT NULL DEFAULT '📋',
	color      TEXT NOT NULL DEFAULT '#0078d4',
	sort_order INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS tasks (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id      INTEGER NOT NULL,
	list_id      INTEGER,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	completed    INTEGER NOT NULL DEFAULT 0,
	priority     TEXT NOT NULL DEFAULT 'medium',
	due_date     TEXT,
	start_time   TEXT,
	end_time     TEXT,
	is_important INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	completed_at DATETIME
)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_due ON tasks (user_id, due_date)`,
	`CREATE INDEX IF NOT EXISTS idx_task_lists_user ON task_lists (user_id, sort_order)`,
}

const selectTasks = `
SELECT t.id, t.user_id, t.list_id, t.title, t.description, t.completed, t.priority,
       t.due_date, t.start_time, t.end_time, t.is_important,
       t.created_at, t.updated_at, t.completed_at,
       tl.name, tl.icon, tl.color
FROM tasks t
LEFT JOIN task_lists tl ON tl.id = t.list_id`

// OpenDB opens (or creates) the SQLite database at dbPath. Stores built on
// the returned handle share one connection.
func OpenDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	return db, nil
}

// SQLiteStore persists tasks and lists in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore ensures the task tables exist on db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("create task schema: %w", err)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// CreateTask inserts t and sets its ID, owner and timestamps.
func (s *SQLiteStore) CreateTask(ctx context.Context, userID int64, t *Task) (int64, error) {
	now := s.now()
	t.UserID = userID
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if err := s.checkList(ctx, userID, t.ListID); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks
			(user_id, list_id, title, description, completed, priority, due_date,
			 start_time, end_time, is_important, created_at, updated_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		userID, nullID(t.ListID), t.Title, t.Description, t.Completed, string(t.Priority),
		nullString(t.DueDate), nullString(t.StartTime), nullString(t.EndTime),
		t.IsImportant, t.CreatedAt, t.UpdatedAt, nullTime(t.CompletedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert task id: %w", err)
	}
	t.ID = id
	return id, nil
}

// GetTask retrieves a task owned by userID.
func (s *SQLiteStore) GetTask(ctx context.Context, userID, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, selectTasks+` WHERE t.id = ? AND t.user_id = ?`, id, userID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return t, err
}

// ListTasks returns the user's tasks, important first, then by due date.
func (s *SQLiteStore) ListTasks(ctx context.Context, userID int64, filter Filter) ([]*Task, error) {
	q := strings.Builder{}
	q.WriteString(selectTasks)
	q.WriteString(" WHERE t.user_id = ?")
	args := []any{userID}

	if filter.ListID != 0 {
		q.WriteString(" AND t.list_id = ?")
		args = append(args, filter.ListID)
	}
	if filter.HideCompleted {
		q.WriteString(" AND t.completed = 0")
	}
	q.WriteString(" ORDER BY t.is_important DESC, t.due_date ASC, t.created_at DESC")
	return s.queryTasks(ctx, q.String(), args...)
}

// UpdateTask applies the non-nil fields of u. Completing a task stamps
// completed_at; reopening it clears the stamp. updated_at is always set.
func (s *SQLiteStore) UpdateTask(ctx context.Context, userID, id int64, u Update) (int64, error) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if u.Title != nil {
		set("title", *u.Title)
	}
	if u.Description != nil {
		set("description", *u.Description)
	}
	if u.Priority != nil {
		set("priority", string(*u.Priority))
	}
	if u.DueDate != nil {
		set("due_date", nullString(*u.DueDate))
	}
	if u.StartTime != nil {
		set("start_time", nullString(*u.StartTime))
	}
	if u.EndTime != nil {
		set("end_time", nullString(*u.EndTime))
	}
	if u.ListID != nil {
		if err := s.checkList(ctx, userID, *u.ListID); err != nil {
			return 0, err
		}
		set("list_id", nullID(*u.ListID))
	}
	if u.IsImportant != nil {
		set("is_important", *u.IsImportant)
	}
	now := s.now()
	if u.Completed != nil {
		set("completed", *u.Completed)
		if *u.Completed {
			set("completed_at", now)
		} else {
			set("completed_at", nil)
		}
	}
	set("updated_at", now)
	args = append(args, id, userID)

	res, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?", args...)
	if err != nil {
		return 0, fmt.Errorf("update task: %w", err)
	}
	return res.RowsAffected()
}

// checkList returns ErrNotFound unless listID is zero or one of the user's
// lists.
func (s *SQLiteStore) checkList(ctx context.Context, userID, listID int64) error {
	if listID == 0 {
		return nil
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM task_lists WHERE id = ? AND user_id = ?`, listID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("list %d: %w", listID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check list: %w", err)
	}
	return nil
}

// DeleteTask removes a task owned by userID.
func (s *SQLiteStore) DeleteTask(ctx context.Context, userID, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete task: %w", err)
	}
	return res.RowsAffected()
}

// SearchTasks returns every task whose title or description contains query,
// compared under Unicode case folding.
func (s *SQLiteStore) SearchTasks(ctx context.Context, userID int64, query string) ([]*Task, error) {
	pattern := "%" + escapeLike(foldText(query)) + "%"
	return s.queryTasks(ctx, selectTasks+`
		WHERE t.user_id = ?
		  AND (fold(t.title) LIKE ? ESCAPE '\' OR fold(t.description) LIKE ? ESCAPE '\')
		ORDER BY t.is_important DESC, t.due_date ASC, t.id ASC`,
		userID, pattern, pattern)
}

// RecentTasks returns up to limit tasks, newest first.
func (s *SQLiteStore) RecentTasks(ctx context.Context, userID int64, limit int) ([]*Task, error) {
	return s.queryTasks(ctx, selectTasks+`
		WHERE t.user_id = ? ORDER BY t.created_at DESC, t.id DESC LIMIT ?`, userID, limit)
}

// CreateList inserts l for userID. A zero SortOrder is kept as given.
func (s *SQLiteStore) CreateList(ctx context.Context, userID int64, l *List) (int64, error) {
	if l.Icon == "" {
		l.Icon = DefaultListIcon
	}
	if l.Color == "" {
		l.Color = DefaultListColor
	}
	l.UserID = userID
	l.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO task_lists (user_id, name, icon, color, sort_order, created_at) VALUES (?,?,?,?,?,?)`,
		userID, l.Name, l.Icon, l.Color, l.SortOrder, l.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert list: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert list id: %w", err)
	}
	l.ID = id
	return id, nil
}

// ListLists returns the user's lists in sort order with task counts.
func (s *SQLiteStore) ListLists(ctx context.Context, userID int64) ([]*List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tl.id, tl.user_id, tl.name, tl.icon, tl.color, tl.sort_order, tl.created_at,
		       COUNT(t.id),
		       COUNT(CASE WHEN t.completed = 1 THEN 1 END)
		FROM task_lists tl
		LEFT JOIN tasks t ON t.list_id = tl.id
		WHERE tl.user_id = ?
		GROUP BY tl.id
		ORDER BY tl.sort_order, tl.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	var lists []*List
	for rows.Next() {
		var l List
		if err := rows.Scan(&l.ID, &l.UserID, &l.Name, &l.Icon, &l.Color, &l.SortOrder, &l.CreatedAt,
			&l.TotalTasks, &l.CompletedTasks); err != nil {
			return nil, err
		}
		lists = append(lists, &l)
	}
	return lists, rows.Err()
}

// DeleteList removes a list and the tasks filed under it.
func (s *SQLiteStore) DeleteList(ctx context.Context, userID, id int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE list_id = ? AND user_id = ?", id, userID); err != nil {
		return 0, fmt.Errorf("delete list tasks: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM task_lists WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete list: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// FindOrCreateList looks the list up by exact (case-sensitive) name and
// appends a new one after the current last list when absent.
func (s *SQLiteStore) FindOrCreateList(ctx context.Context, userID int64, name, icon, color string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM task_lists WHERE user_id = ? AND name = ? ORDER BY id LIMIT 1", userID, name).Scan(&id)
	if err == nil {
		return id, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("find list: %w", err)
	}

	var maxOrder sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		"SELECT MAX(sort_order) FROM task_lists WHERE user_id = ?", userID).Scan(&maxOrder); err != nil {
		return 0, fmt.Errorf("max sort order: %w", err)
	}
	if icon == "" {
		icon = DefaultListIcon
	}
	if color == "" {
		color = DefaultListColor
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO task_lists (user_id, name, icon, color, sort_order, created_at) VALUES (?,?,?,?,?,?)`,
		userID, name, icon, color, maxOrder.Int64+1, s.now())
	if err != nil {
		return 0, fmt.Errorf("insert list: %w", err)
	}
	if id, err = res.LastInsertId(); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// FirstList returns the user's first list by sort order.
func (s *SQLiteStore) FirstList(ctx context.Context, userID int64) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM task_lists WHERE user_id = ? ORDER BY sort_order, id LIMIT 1", userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("first list: %w", err)
	}
	return id, true, nil
}

// MaxSortOrder returns the user's highest list sort order, 0 when there are none.
func (s *SQLiteStore) MaxSortOrder(ctx context.Context, userID int64) (int, error) {
	var maxOrder sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		"SELECT MAX(sort_order) FROM task_lists WHERE user_id = ?", userID).Scan(&maxOrder); err != nil {
		return 0, fmt.Errorf("max sort order: %w", err)
	}
	return int(maxOrder.Int64), nil
}

// Stats counts the user's tasks relative to today.
func (s *SQLiteStore) Stats(ctx context.Context, userID int64, today time.Time) (*Stats, error) {
	day := today.Format(DateLayout)
	weekEnd := today.AddDate(0, 0, 7).Format(DateLayout)

	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(CASE WHEN completed = 1 THEN 1 END),
		       COUNT(CASE WHEN is_important = 1 AND completed = 0 THEN 1 END),
		       COUNT(CASE WHEN due_date = ? AND completed = 0 THEN 1 END),
		       COUNT(CASE WHEN due_date BETWEEN ? AND ? AND completed = 0 THEN 1 END)
		FROM tasks WHERE user_id = ?`,
		day, day, weekEnd, userID,
	).Scan(&st.Total, &st.Completed, &st.Important, &st.DueToday, &st.DueThisWeek)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	st.Pending = st.Total - st.Completed
	if st.Total > 0 {
		st.CompletionRate = math.Round(float64(st.Completed)/float64(st.Total)*1000) / 10
	}
	return &st, nil
}

// Week returns the seven days starting at start with the tasks due on each.
func (s *SQLiteStore) Week(ctx context.Context, userID int64, start time.Time) (*Week, error) {
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 6)

	w := &Week{
		WeekStart: start.Format(DateLayout),
		WeekEnd:   end.Format(DateLayout),
		Days:      make([]Day, 7),
	}
	index := make(map[string]int, 7)
	for i := range w.Days {
		d := start.AddDate(0, 0, i)
		w.Days[i] = Day{Date: d.Format(DateLayout), DayName: d.Weekday().String(), Tasks: []*Task{}}
		index[w.Days[i].Date] = i
	}

	tasks, err := s.queryTasks(ctx, selectTasks+`
		WHERE t.user_id = ? AND t.due_date BETWEEN ? AND ?
		ORDER BY t.due_date, t.start_time, t.is_important DESC`,
		userID, w.WeekStart, w.WeekEnd)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if i, ok := index[t.DueDate]; ok {
			w.Days[i].Tasks = append(w.Days[i].Tasks, t)
		}
	}
	return w, nil
}

func (s *SQLiteStore) queryTasks(ctx context.Context, query string, args ...any) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*Task, error) {
	var t Task
	var priority string
	var listID sql.NullInt64
	var dueDate, startTime, endTime, listName, listIcon, listColor sql.NullString
	var completedAt sql.NullTime

	err := s.Scan(
		&t.ID, &t.UserID, &listID, &t.Title, &t.Description, &t.Completed, &priority,
		&dueDate, &startTime, &endTime, &t.IsImportant,
		&t.CreatedAt, &t.UpdatedAt, &completedAt,
		&listName, &listIcon, &listColor,
	)
	if err != nil {
		return nil, err
	}

	t.Priority = Priority(priority)
	t.ListID = listID.Int64
	t.DueDate = dueDate.String
	t.StartTime = startTime.String
	t.EndTime = endTime.String
	t.ListName = listName.String
	t.ListIcon = listIcon.String
	t.ListColor = listColor.String
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// escapeLike escapes LIKE wildcards so the query matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
