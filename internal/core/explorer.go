package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/RecoveryAshes/TypeDex/internal/models"
	"github.com/rs/zerolog"
)

// State 探索会话状态
type State int

const (
	StatePrompting State = iota
	StateOpening
	StateAwaitingAcknowledgement
	StateClosing
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePrompting:
		return "Prompting"
	case StateOpening:
		return "Opening"
	case StateAwaitingAcknowledgement:
		return "AwaitingAcknowledgement"
	case StateClosing:
		return "Closing"
	case StateDone:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// TabBudget 批量打开标签页的建议上限
type TabBudget interface {
	CalculateMaxTabs() int
}

// ExplorationSession 按属性批量打开条目的交互循环
//
// Prompting -> Opening -> AwaitingAcknowledgement -> Closing -> (Prompting | Done)
type ExplorationSession struct {
	nav         models.Navigator
	op          models.Operator
	index       *models.TagIndex
	guard       *TabGuard
	budget      TabBudget
	maxAttempts int
	showSummary bool
	log         zerolog.Logger

	state    State
	selected string
	inputEOF bool
	stats    models.ExploreStats
}

// NewExplorationSession 创建探索会话
// guard必须与索引构建使用同一个主标签页; budget可以为nil
func NewExplorationSession(nav models.Navigator, op models.Operator, index *models.TagIndex, guard *TabGuard, cfg models.SessionConfig, budget TabBudget, log zerolog.Logger) *ExplorationSession {
	maxAttempts := cfg.MaxInputAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ExplorationSession{
		nav:         nav,
		op:          op,
		index:       index,
		guard:       guard,
		budget:      budget,
		maxAttempts: maxAttempts,
		showSummary: cfg.ShowTagSummary,
		log:         log,
		state:       StatePrompting,
	}
}

// State 当前状态
func (es *ExplorationSession) State() State {
	return es.state
}

// Stats 会话统计
func (es *ExplorationSession) Stats() models.ExploreStats {
	return es.stats
}

// Run 运行状态机直到Done
// 只有标签页不变量被破坏、打开标签页失败或context取消时返回错误
func (es *ExplorationSession) Run(ctx context.Context) error {
	for es.state != StateDone {
		if err := ctx.Err(); err != nil {
			return err
		}

		var next State
		var err error
		switch es.state {
		case StatePrompting:
			next, err = es.prompt(ctx)
		case StateOpening:
			next, err = es.open(ctx)
		case StateAwaitingAcknowledgement:
			next, err = es.await(ctx)
		case StateClosing:
			next, err = es.close(ctx)
		default:
			return fmt.Errorf("未知状态: %s", es.state)
		}
		if err != nil {
			es.log.Error().Err(err).Str("state", es.state.String()).Msg("探索会话出错")
			return err
		}

		es.log.Debug().
			Str("from", es.state.String()).
			Str("to", next.String()).
			Str("tag", es.selected).
			Msg("Transition")
		es.state = next
	}

	es.log.Info().
		Int("rounds", es.stats.Rounds).
		Int("opened_tabs", es.stats.OpenedTabs).
		Int("bad_inputs", es.stats.BadInputs).
		Msg("探索会话结束")
	return nil
}

func (es *ExplorationSession) prompt(ctx context.Context) (State, error) {
	if es.index.Len() == 0 {
		es.op.Say("索引为空,没有可浏览的属性")
		return StateDone, nil
	}
	if es.showSummary {
		es.printSummary()
	}

	for attempt := 1; attempt <= es.maxAttempts; attempt++ {
		line, err := es.op.Ask(ctx, "请输入要浏览的属性: ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return StateDone, nil
			}
			return StatePrompting, err
		}

		tag := models.NormalizeTag(line)
		if tag == "" {
			es.reject(&models.InputError{Input: line, Reason: "属性不能为空"})
			continue
		}
		if _, ok := es.index.Lookup(tag); !ok {
			es.reject(&models.InputError{Input: tag, Reason: "索引中没有该属性"})
			continue
		}
		es.selected = tag
		return StateOpening, nil
	}

	es.op.Say("连续%d次无效输入,结束浏览", es.maxAttempts)
	return StateDone, nil
}

func (es *ExplorationSession) reject(err *models.InputError) {
	es.stats.BadInputs++
	es.op.Say("%v", err)
}

func (es *ExplorationSession) printSummary() {
	parts := make([]string, 0, es.index.Len())
	for _, tag := range es.index.Tags() {
		parts = append(parts, fmt.Sprintf("%s(%d)", tag, es.index.Count(tag)))
	}
	es.op.Say("可用属性: %s", strings.Join(parts, " "))
}

func (es *ExplorationSession) open(ctx context.Context) (State, error) {
	refs, _ := es.index.Lookup(es.selected)

	if es.budget != nil {
		if limit := es.budget.CalculateMaxTabs(); limit > 0 && len(refs) > limit {
			es.log.Warn().
				Str("tag", es.selected).
				Int("count", len(refs)).
				Int("budget", limit).
				Msg("将要打开的标签页数量超过资源建议上限")
		}
	}

	for _, ref := range refs {
		if _, err := es.guard.Open(ctx, ref.Element); err != nil {
			openErr := fmt.Errorf("打开条目 %s 失败: %w", ref, err)
			if closeErr := es.guard.CloseAll(ctx); closeErr != nil {
				return StateOpening, errors.Join(openErr, closeErr)
			}
			return StateOpening, openErr
		}
		es.stats.OpenedTabs++
	}
	return StateAwaitingAcknowledgement, nil
}

func (es *ExplorationSession) await(ctx context.Context) (State, error) {
	es.op.Say("已打开%d个 %s 属性的条目", es.guard.OpenCount(), es.selected)
	if _, err := es.op.Ask(ctx, "浏览完毕后按回车关闭这些标签页..."); err != nil {
		if !errors.Is(err, io.EOF) {
			return StateAwaitingAcknowledgement, err
		}
		es.inputEOF = true
	}
	return StateClosing, nil
}

func (es *ExplorationSession) close(ctx context.Context) (State, error) {
	if err := es.guard.CloseAll(ctx); err != nil {
		return StateClosing, err
	}
	es.stats.Rounds++
	if es.inputEOF {
		return StateDone, nil
	}

	for attempt := 1; attempt <= es.maxAttempts; attempt++ {
		line, err := es.op.Ask(ctx, "继续浏览其他属性吗? (y/n): ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return StateDone, nil
			}
			return StateClosing, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return StatePrompting, nil
		case "n", "no":
			return StateDone, nil
		}
		es.reject(&models.InputError{Input: line, Reason: "请输入 y 或 n"})
	}
	return StateDone, nil
}
