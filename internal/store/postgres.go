package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/pkg/database"
)

// Postgres signals.* 스키마 저장소 (pkg/database Migrate)
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres 새 저장소 생성
func NewPostgres(db *database.DB) *Postgres {
	return &Postgres{pool: db.Pool}
}

// SaveSignal 시그널 저장 (재전송 시 점수/상태는 덮어쓰지 않음)
func (p *Postgres) SaveSignal(ctx context.Context, sig *contracts.CanonicalSignal) error {
	query := `
		INSERT INTO signals.canonical_signals
			(id, platform, source_id, message_id, asset, direction, entry_low, entry_high,
			 targets, stop, stop_synthesized, leverage, timeframe, raw_text,
			 extraction_conf, confidence, config_hash, state, group_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (id) DO UPDATE SET
			group_id = EXCLUDED.group_id`

	var entryLow, entryHigh *float64
	if sig.Entry != nil {
		entryLow, entryHigh = &sig.Entry.Low, &sig.Entry.High
	}
	var timeframe *string
	if sig.Timeframe != nil {
		timeframe = &sig.Timeframe.Tag
	}
	var groupID *string
	if sig.GroupID != "" {
		groupID = &sig.GroupID
	}
	targets := sig.Targets
	if targets == nil {
		targets = []float64{}
	}

	_, err := p.pool.Exec(ctx, query,
		sig.ID, sig.Platform, sig.SourceID, sig.MessageID, sig.Asset, string(sig.Direction),
		entryLow, entryHigh, targets, sig.Stop, sig.StopSynthesized, sig.Leverage, timeframe,
		sig.RawText, sig.ExtractionConfidence, sig.Confidence, sig.ConfigHash,
		string(sig.State), groupID, sig.CreatedAt, sig.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save signal %s: %w", sig.ID, err)
	}
	return nil
}

// SaveTransition 전이 기록 + 시그널 상태 갱신을 한 트랜잭션으로
// (signal_id, to_state) PK 로 같은 전이는 한 번만 기록
func (p *Postgres) SaveTransition(ctx context.Context, sig *contracts.CanonicalSignal, tr contracts.Transition) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO signals.transitions (signal_id, from_state, to_state, price, reason, at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (signal_id, to_state) DO NOTHING`,
		tr.SignalID, string(tr.From), string(tr.To), tr.Price, tr.Reason, tr.At,
	)
	if err != nil {
		return fmt.Errorf("insert transition %s: %w", tr.SignalID, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE signals.canonical_signals
		SET state = $2, resolved_at = $3, resolution_price = $4, return_pct = $5
		WHERE id = $1`,
		sig.ID, string(sig.State), sig.ResolvedAt, sig.ResolutionPrice, sig.ReturnPct,
	)
	if err != nil {
		return fmt.Errorf("update signal state %s: %w", sig.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transition %s: %w", tr.SignalID, err)
	}
	return nil
}

// SaveGroup 그룹 upsert (닫힌 그룹은 갱신하지 않음)
func (p *Postgres) SaveGroup(ctx context.Context, g *contracts.SignalGroup) error {
	query := `
		INSERT INTO signals.groups AS g
			(id, asset, direction, member_ids, primary_id, consensus_score, classification, mean_entry, closed, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			member_ids = EXCLUDED.member_ids,
			primary_id = EXCLUDED.primary_id,
			consensus_score = EXCLUDED.consensus_score,
			classification = EXCLUDED.classification,
			mean_entry = EXCLUDED.mean_entry,
			closed = EXCLUDED.closed,
			updated_at = EXCLUDED.updated_at
		WHERE NOT g.closed`

	_, err := p.pool.Exec(ctx, query,
		g.ID, g.Asset, string(g.Direction), g.MemberIDs, g.PrimaryID,
		g.ConsensusScore, string(g.Classification), g.MeanEntry, g.Closed, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save group %s: %w", g.ID, err)
	}
	return nil
}

// DeleteGroup 다른 그룹에 흡수된 그룹 삭제
func (p *Postgres) DeleteGroup(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM signals.groups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete group %s: %w", id, err)
	}
	return nil
}

// SaveReputation 소스 평판 스냅샷 upsert
func (p *Postgres) SaveReputation(ctx context.Context, rep contracts.SourceReputation) error {
	query := `
		INSERT INTO signals.source_reputation
			(source_id, total_resolved, successes, voided, success_rate, avg_return,
			 drawdown, risk_adjusted, composite_rank, category, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (source_id) DO UPDATE SET
			total_resolved = EXCLUDED.total_resolved,
			successes = EXCLUDED.successes,
			voided = EXCLUDED.voided,
			success_rate = EXCLUDED.success_rate,
			avg_return = EXCLUDED.avg_return,
			drawdown = EXCLUDED.drawdown,
			risk_adjusted = EXCLUDED.risk_adjusted,
			composite_rank = EXCLUDED.composite_rank,
			category = EXCLUDED.category,
			last_updated = EXCLUDED.last_updated`

	_, err := p.pool.Exec(ctx, query,
		rep.SourceID, rep.TotalResolved, rep.Successes, rep.Voided, rep.SuccessRate,
		rep.AvgReturn, rep.Drawdown, rep.RiskAdjusted, rep.CompositeRank,
		string(rep.Category), rep.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("save reputation %s: %w", rep.SourceID, err)
	}
	return nil
}

func (p *Postgres) SaveAdvisory(ctx context.Context, a contracts.Advisory) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO signals.advisories (kind, subject, message, at)
		VALUES ($1, $2, $3, $4)`,
		string(a.Kind), a.Subject, a.Message, a.At,
	)
	if err != nil {
		return fmt.Errorf("save advisory %s: %w", a.Kind, err)
	}
	return nil
}

// LoadReputation 저장된 평판 스냅샷 조회 (운영 리포트용)
func (p *Postgres) LoadReputation(ctx context.Context) ([]contracts.SourceReputation, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT source_id, total_resolved, successes, voided, success_rate, avg_return,
		       drawdown, risk_adjusted, composite_rank, category, last_updated
		FROM signals.source_reputation
		ORDER BY composite_rank DESC, source_id`)
	if err != nil {
		return nil, fmt.Errorf("query reputation: %w", err)
	}
	defer rows.Close()

	var out []contracts.SourceReputation
	for rows.Next() {
		var r contracts.SourceReputation
		var category string
		if err := rows.Scan(&r.SourceID, &r.TotalResolved, &r.Successes, &r.Voided, &r.SuccessRate,
			&r.AvgReturn, &r.Drawdown, &r.RiskAdjusted, &r.CompositeRank, &category, &r.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan reputation: %w", err)
		}
		r.Category = contracts.ReputationCategory(category)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadOutcomes 소스별 최근 perSource 건의 진입 후 종결 결과 (오래된 순)
// ACTIVE 전이가 기록된 시그널만 진입한 것으로 본다
func (p *Postgres) LoadOutcomes(ctx context.Context, perSource int) ([]contracts.Resolution, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, source_id, asset, direction, state, COALESCE(return_pct, 0), COALESCE(resolution_price, 0), resolved_at
		FROM (
			SELECT s.*, ROW_NUMBER() OVER (PARTITION BY s.source_id ORDER BY s.resolved_at DESC) AS rn
			FROM signals.canonical_signals s
			WHERE s.resolved_at IS NOT NULL
			  AND EXISTS (
				SELECT 1 FROM signals.transitions t
				WHERE t.signal_id = s.id AND t.to_state = 'ACTIVE'
			  )
		) recent
		WHERE $1 <= 0 OR rn <= $1
		ORDER BY source_id, resolved_at, id`, perSource)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []contracts.Resolution
	for rows.Next() {
		var (
			r                contracts.Resolution
			direction, state string
		)
		if err := rows.Scan(&r.SignalID, &r.SourceID, &r.Asset, &direction, &state,
			&r.ReturnPct, &r.Price, &r.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		r.Direction = contracts.Direction(direction)
		r.FinalState = contracts.LifecycleState(state)
		r.Entered = true
		out = append(out, r)
	}
	return out, rows.Err()
}
