package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
	"github.com/google/uuid"
)

const (
	stateColumns = `phone_number, conversation_id, strategy, current_step, request_type,
		collected_data, catalog_sent, quote_generated, transferred_to_human, courtesy_sent,
		lead_quality, category, menu_attempts, correcting_field, message_count,
		last_interaction, created_at, updated_at`
	leadColumns = `id, phone_number, name, source, status, funnel_stage, classification,
		ai_category, empresa, ciudad, correo, producto_interes, codigos_producto, cantidad_estimada,
		fecha_entrega, presupuesto, personalizacion, notes, created_at, updated_at, last_message_at`
	quoteColumns = `id, conversation_id, phone_number, status, client_name, client_empresa,
		client_correo, client_ciudad, items, cantidad, fecha_entrega, personalizacion,
		necesita_diseno, total_cents, delivery_estimate, notes, created_at`
	productColumns = `id, code, name, description, categories, price_cents, stock, image_url, created_at`
)

// sqlStore holds the queries shared by the SQLite and Postgres backends.
// Queries are written with ? placeholders and rebound for Postgres.
type sqlStore struct {
	db       *sql.DB
	name     string // log prefix, e.g. "SQLiteStore"
	postgres bool
}

// rebind converts ? placeholders into $n for Postgres.
func (s *sqlStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) GetConversationState(ctx context.Context, phone string) (*models.ConversationState, error) {
	row := s.queryRow(ctx, `SELECT `+stateColumns+` FROM conversation_states WHERE phone_number = ?`, phone)
	st, err := scanConversationState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+".GetConversationState: query failed", "phone", phone, "error", err)
		return nil, fmt.Errorf("failed to get conversation state for %s: %w", phone, err)
	}
	return st, nil
}

func (s *sqlStore) PutConversationState(ctx context.Context, st *models.ConversationState) error {
	data, err := marshalJSON(st.CollectedData)
	if err != nil {
		return err
	}
	catalog := st.CatalogSent
	if catalog == nil {
		catalog = []string{}
	}
	catalogJSON, err := marshalJSON(catalog)
	if err != nil {
		return err
	}
	var requestType interface{}
	if st.RequestType != nil {
		requestType = string(*st.RequestType)
	}
	_, err = s.exec(ctx, `INSERT INTO conversation_states (`+stateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (phone_number) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			strategy = excluded.strategy,
			current_step = excluded.current_step,
			request_type = excluded.request_type,
			collected_data = excluded.collected_data,
			catalog_sent = excluded.catalog_sent,
			quote_generated = excluded.quote_generated,
			transferred_to_human = excluded.transferred_to_human,
			courtesy_sent = excluded.courtesy_sent,
			lead_quality = excluded.lead_quality,
			category = excluded.category,
			menu_attempts = excluded.menu_attempts,
			correcting_field = excluded.correcting_field,
			message_count = excluded.message_count,
			last_interaction = excluded.last_interaction,
			updated_at = excluded.updated_at`,
		st.PhoneNumber, st.ConversationID, st.Strategy, string(st.CurrentStep), requestType,
		data, catalogJSON, st.QuoteGenerated, st.TransferredToHuman, st.CourtesySent,
		string(st.LeadQuality), nilIfEmpty(st.Category), st.MenuAttempts, nilIfEmpty(string(st.CorrectingField)), st.MessageCount,
		st.LastInteraction, st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		slog.Error(s.name+".PutConversationState: upsert failed", "phone", st.PhoneNumber, "error", err)
		return fmt.Errorf("failed to save conversation state for %s: %w", st.PhoneNumber, err)
	}
	slog.Debug(s.name+".PutConversationState: saved", "phone", st.PhoneNumber, "step", st.CurrentStep)
	return nil
}

func (s *sqlStore) GetLead(ctx context.Context, phone string) (*models.Lead, error) {
	row := s.queryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE phone_number = ?`, phone)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+".GetLead: query failed", "phone", phone, "error", err)
		return nil, fmt.Errorf("failed to get lead for %s: %w", phone, err)
	}
	return l, nil
}

func (s *sqlStore) leadArgs(l *models.Lead) []interface{} {
	return []interface{}{
		l.ID, l.PhoneNumber, nilIfEmpty(l.Name), l.Source, l.Status, string(l.FunnelStage), string(l.Classification),
		nilIfEmpty(l.AICategory), nilIfEmpty(l.Empresa), nilIfEmpty(l.Ciudad), nilIfEmpty(l.Correo),
		nilIfEmpty(l.ProductoInteres), nilIfEmpty(l.CodigosProducto), nilIfEmpty(l.CantidadEstimada),
		nilIfEmpty(l.FechaEntrega), nilIfEmpty(l.Presupuesto), nilIfEmpty(l.Personalizacion), nilIfEmpty(l.Notes),
		l.CreatedAt, l.UpdatedAt, l.LastMessageAt,
	}
}

const leadPlaceholders = `(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *sqlStore) CreateLead(ctx context.Context, l *models.Lead) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	res, err := s.exec(ctx, `INSERT INTO leads (`+leadColumns+`) VALUES `+leadPlaceholders+`
		ON CONFLICT (phone_number) DO NOTHING`, s.leadArgs(l)...)
	if err != nil {
		slog.Error(s.name+".CreateLead: insert failed", "phone", l.PhoneNumber, "error", err)
		return fmt.Errorf("failed to create lead for %s: %w", l.PhoneNumber, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	slog.Debug(s.name+".CreateLead: created", "phone", l.PhoneNumber, "id", l.ID)
	return nil
}

func (s *sqlStore) UpsertLead(ctx context.Context, l *models.Lead) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := s.exec(ctx, `INSERT INTO leads (`+leadColumns+`) VALUES `+leadPlaceholders+`
		ON CONFLICT (phone_number) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			funnel_stage = excluded.funnel_stage,
			classification = excluded.classification,
			ai_category = excluded.ai_category,
			empresa = excluded.empresa,
			ciudad = excluded.ciudad,
			correo = excluded.correo,
			producto_interes = excluded.producto_interes,
			codigos_producto = excluded.codigos_producto,
			cantidad_estimada = excluded.cantidad_estimada,
			fecha_entrega = excluded.fecha_entrega,
			presupuesto = excluded.presupuesto,
			personalizacion = excluded.personalizacion,
			notes = excluded.notes,
			updated_at = excluded.updated_at,
			last_message_at = excluded.last_message_at`, s.leadArgs(l)...)
	if err != nil {
		slog.Error(s.name+".UpsertLead: upsert failed", "phone", l.PhoneNumber, "error", err)
		return fmt.Errorf("failed to upsert lead for %s: %w", l.PhoneNumber, err)
	}
	return nil
}

func (s *sqlStore) ListLeads(ctx context.Context, filter models.LeadFilter) ([]models.Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []interface{}
	if filter.Stage != "" {
		q += ` AND funnel_stage = ?`
		args = append(args, string(filter.Stage))
	}
	if filter.Classification != "" {
		q += ` AND classification = ?`
		args = append(args, string(filter.Classification))
	}
	q += ` ORDER BY created_at DESC`
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		slog.Error(s.name+".ListLeads: query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()
	var leads []models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		leads = append(leads, *l)
	}
	return leads, rows.Err()
}

func (s *sqlStore) CreateQuote(ctx context.Context, q *models.Quote) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	items := q.Items
	if items == nil {
		items = []models.QuoteItem{}
	}
	itemsJSON, err := marshalJSON(items)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO quotes (`+quoteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.ConversationID, q.PhoneNumber, q.Status, nilIfEmpty(q.ClientName), nilIfEmpty(q.ClientEmpresa),
		nilIfEmpty(q.ClientCorreo), nilIfEmpty(q.ClientCiudad), itemsJSON, nilIfEmpty(q.Cantidad),
		nilIfEmpty(q.FechaEntrega), nilIfEmpty(q.Personalizacion), nilIfEmpty(q.NecesitaDiseno),
		q.TotalCents, q.DeliveryEstimate, nilIfEmpty(q.Notes), q.CreatedAt,
	)
	if err != nil {
		slog.Error(s.name+".CreateQuote: insert failed", "phone", q.PhoneNumber, "error", err)
		return fmt.Errorf("failed to create quote for %s: %w", q.PhoneNumber, err)
	}
	slog.Debug(s.name+".CreateQuote: created", "id", q.ID, "items", len(q.Items), "total_cents", q.TotalCents)
	return nil
}

func (s *sqlStore) GetQuote(ctx context.Context, id string) (*models.Quote, error) {
	row := s.queryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = ?`, id)
	q, err := scanQuote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quote %s: %w", id, err)
	}
	return q, nil
}

func (s *sqlStore) ListQuotes(ctx context.Context, status string) ([]models.Quote, error) {
	q := `SELECT ` + quoteColumns + ` FROM quotes`
	var args []interface{}
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at ASC`
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		slog.Error(s.name+".ListQuotes: query failed", "error", err)
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()
	var quotes []models.Quote
	for rows.Next() {
		qt, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote row: %w", err)
		}
		quotes = append(quotes, *qt)
	}
	return quotes, rows.Err()
}

func (s *sqlStore) scanProducts(rows *sql.Rows) ([]models.Product, error) {
	defer rows.Close()
	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *sqlStore) FindProductsByCode(ctx context.Context, codes []string) ([]models.Product, error) {
	var out []models.Product
	for _, code := range codes {
		c := normalizeCode(code)
		if c == "" {
			continue
		}
		rows, err := s.query(ctx, `SELECT `+productColumns+` FROM products
			WHERE UPPER(code) LIKE ? ESCAPE '\' ORDER BY code LIMIT 1`, escapeLike(c)+"%")
		if err != nil {
			slog.Error(s.name+".FindProductsByCode: query failed", "code", c, "error", err)
			return nil, fmt.Errorf("failed to look up product %s: %w", c, err)
		}
		found, err := s.scanProducts(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func (s *sqlStore) FindProductsByKeyword(ctx context.Context, keyword string, limit int) ([]models.Product, error) {
	words := keywordWords(keyword)
	if len(words) == 0 {
		return nil, nil
	}
	var conds []string
	var args []interface{}
	for _, w := range words {
		pattern := "%" + escapeLike(w) + "%"
		conds = append(conds, `(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE ? ESCAPE '\' OR LOWER(categories) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	q := `SELECT ` + productColumns + ` FROM products WHERE ` + strings.Join(conds, " OR ") + ` ORDER BY created_at, code`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		slog.Error(s.name+".FindProductsByKeyword: query failed", "keyword", keyword, "error", err)
		return nil, fmt.Errorf("failed to search products for %q: %w", keyword, err)
	}
	return s.scanProducts(rows)
}

func (s *sqlStore) SampleProducts(ctx context.Context, limit int) ([]models.Product, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := s.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at, code LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample products: %w", err)
	}
	return s.scanProducts(rows)
}

func (s *sqlStore) AddProduct(ctx context.Context, p *models.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	categories := p.Categories
	if categories == nil {
		categories = []string{}
	}
	catJSON, err := marshalJSON(categories)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (code) DO NOTHING`,
		p.ID, normalizeCode(p.Code), p.Name, nilIfEmpty(p.Description), catJSON, p.PriceCents, p.Stock, nilIfEmpty(p.ImageURL), p.CreatedAt)
	if err != nil {
		slog.Error(s.name+".AddProduct: insert failed", "code", p.Code, "error", err)
		return fmt.Errorf("failed to add product %s: %w", p.Code, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	p.Code = normalizeCode(p.Code)
	return nil
}

func (s *sqlStore) AddTranscriptMessage(ctx context.Context, m models.TranscriptMessage) error {
	_, err := s.exec(ctx, `INSERT INTO messages (conversation_id, phone_number, sender, body, created_at)
		VALUES (?, ?, ?, ?, ?)`, m.ConversationID, m.PhoneNumber, m.Sender, m.Body, m.Time)
	if err != nil {
		slog.Error(s.name+".AddTranscriptMessage: insert failed", "conversation_id", m.ConversationID, "error", err)
		return fmt.Errorf("failed to add transcript message: %w", err)
	}
	return nil
}

func (s *sqlStore) RecentTranscript(ctx context.Context, conversationID string, limit int) ([]models.TranscriptMessage, error) {
	if limit <= 0 {
		limit = 8
	}
	rows, err := s.query(ctx, `SELECT conversation_id, phone_number, sender, body, created_at FROM messages
		WHERE conversation_id = ? ORDER BY id DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()
	var msgs []models.TranscriptMessage
	for rows.Next() {
		var m models.TranscriptMessage
		if err := rows.Scan(&m.ConversationID, &m.PhoneNumber, &m.Sender, &m.Body, &m.Time); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// newest first from the query; callers want oldest first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *sqlStore) RecordInbound(ctx context.Context, messageID, phone string) (bool, error) {
	res, err := s.exec(ctx, `INSERT INTO inbound_dedup (message_id, phone_number, received_at)
		VALUES (?, ?, ?) ON CONFLICT (message_id) DO NOTHING`, messageID, phone, time.Now().UTC())
	if err != nil {
		slog.Error(s.name+".RecordInbound: insert failed", "message_id", messageID, "error", err)
		return false, fmt.Errorf("failed to record inbound message %s: %w", messageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *sqlStore) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := s.exec(ctx, `UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`, time.Now(), messageID)
	if err != nil {
		return fmt.Errorf("failed to mark message %s processed: %w", messageID, err)
	}
	return nil
}

func (s *sqlStore) PruneDedup(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM inbound_dedup WHERE received_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune dedup records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug(s.name + ".Close: closing database connection")
	return s.db.Close()
}
