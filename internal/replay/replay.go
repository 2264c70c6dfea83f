// Package replay runs recorded messages and price ticks through a pipeline offline.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/pipeline"
)

// maxLine 한 줄 JSON 최대 크기 (메시지 본문 8KB + 메타데이터 여유)
const maxLine = 1 << 20

// Event 시각 순으로 재생할 입력 하나 (메시지 또는 틱)
type Event struct {
	At      time.Time
	Message *contracts.RawMessage
	Tick    *contracts.PriceTick
}

// Summary 재생 결과
type Summary struct {
	Messages    int                      `json:"messages"`
	Ticks       int                      `json:"ticks"`
	Resolutions int                      `json:"resolutions"`
	ByStatus    map[pipeline.Status]int  `json:"by_status"`
	Results     []pipeline.MessageResult `json:"results"`
}

// ReadMessages decodes one RawMessage per line; blank lines are skipped
func ReadMessages(r io.Reader) ([]contracts.RawMessage, error) {
	var out []contracts.RawMessage
	err := readLines(r, func(line []byte) error {
		var msg contracts.RawMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return err
		}
		out = append(out, msg)
		return nil
	})
	return out, err
}

// ReadTicks decodes one PriceTick per line; blank lines are skipped
func ReadTicks(r io.Reader) ([]contracts.PriceTick, error) {
	var out []contracts.PriceTick
	err := readLines(r, func(line []byte) error {
		var tick contracts.PriceTick
		if err := json.Unmarshal(line, &tick); err != nil {
			return err
		}
		if tick.Source == "" {
			tick.Source = "replay"
		}
		out = append(out, tick)
		return nil
	})
	return out, err
}

func readLines(r io.Reader, fn func([]byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn([]byte(line)); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}

// Merge orders messages and ticks by time
// 같은 시각이면 메시지가 먼저 (해당 틱이 새 시그널에 적용되도록)
func Merge(msgs []contracts.RawMessage, ticks []contracts.PriceTick) []Event {
	events := make([]Event, 0, len(msgs)+len(ticks))
	for i := range msgs {
		events = append(events, Event{At: msgs[i].Timestamp, Message: &msgs[i]})
	}
	for i := range ticks {
		events = append(events, Event{At: ticks[i].Timestamp, Tick: &ticks[i]})
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].At.Equal(events[j].At) {
			return events[i].At.Before(events[j].At)
		}
		return events[i].Message != nil && events[j].Message == nil
	})
	return events
}

// Run feeds events through p in order
// 틱은 폴러 대신 Tracker.ProcessTick 으로 직접 주입하고, 매 이벤트 뒤 종결을 동기 처리
func Run(ctx context.Context, p *pipeline.Pipeline, events []Event) Summary {
	sum := Summary{ByStatus: make(map[pipeline.Status]int)}

	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		switch {
		case ev.Message != nil:
			p.Prune(ctx, ev.At)
			res := p.Ingest(ctx, *ev.Message)
			sum.Messages++
			sum.ByStatus[res.Status]++
			sum.Results = append(sum.Results, res)
		case ev.Tick != nil:
			p.Tracker().ProcessTick(ctx, *ev.Tick)
			sum.Ticks++
		}
		sum.Resolutions += p.Drain(ctx)
	}
	return sum
}
