package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ip-studio-server/internal/models"
)

// DefaultIdea используется, когда вызывающий прислал пустую идею.
const DefaultIdea = "A shy dragon who secretly runs a bakery on a floating island."

// StoryScriptGenerator - внешний коллаборатор стадии StoryScript.
type StoryScriptGenerator interface {
	GenerateStoryScript(ctx context.Context, idea string) (*models.StoryScript, error)
}

// PanelImageGenerator - внешний коллаборатор панельных стадий.
type PanelImageGenerator interface {
	GeneratePanelImage(ctx context.Context, prompt string) (string, error)
}

// CharacterRefGenerator - внешний коллаборатор стадии CharacterRef.
// Возвращает URL изображения и фактически использованный промпт.
type CharacterRefGenerator interface {
	GenerateCharacterRef(ctx context.Context, panelImageURL string, script *models.StoryScript) (url string, promptUsed string, err error)
}

// ModelConverter - внешний коллаборатор стадии Model3D: создает задачу
// конвертации изображения в 3D и дожидается ее терминального статуса.
type ModelConverter interface {
	ConvertImageToModel(ctx context.Context, sourceImageURL string) (*models.ModelArtifact, error)
}

// DerivedConfigGenerator производит производные представления (game/toy),
// доступные только после готовности Model3D.
type DerivedConfigGenerator interface {
	GenerateGameConfig(ctx context.Context, idea string, script *models.StoryScript) (json.RawMessage, error)
	BuildToyConfig(script *models.StoryScript, model models.ModelArtifact) (json.RawMessage, error)
}

// ResultSink получает снимок сессии после каждого перехода статуса,
// включая переход в Pending. Пуш выполняется по принципу best-effort:
// ошибка синка логируется и не откатывает переход.
type ResultSink interface {
	Push(ctx context.Context, snapshot *models.PipelineSession) error
}

// Service - операции оркестратора, потребляемые HTTP-слоем.
type Service interface {
	CreateSession(ctx context.Context, idea string) (*models.PipelineSession, error)
	Snapshot(sessionID uuid.UUID) (*models.PipelineSession, error)
	GenerateStage(ctx context.Context, sessionID uuid.UUID, stage models.StageID) (*models.PipelineSession, error)
	RedoStage(ctx context.Context, sessionID uuid.UUID, stage models.StageID) (*models.PipelineSession, error)
	GenerateAll(ctx context.Context, sessionID uuid.UUID) (*models.PipelineSession, error)
	DiscardSession(sessionID uuid.UUID) error
}

// sessionEntry - одна живая сессия внутри оркестратора.
// opMu сериализует мутирующие операции (single-flight): второй
// одновременный вызов не встает в очередь, а сразу получает SessionBusy.
// dataMu защищает сами данные сессии и держится только на время
// применения перехода, поэтому Snapshot не блокируется на время
// длинных внешних вызовов.
type sessionEntry struct {
	opMu   sync.Mutex
	dataMu sync.RWMutex
	sess   *models.PipelineSession
}

// Orchestrator - ядро пайплайна: хранит сессии, проверяет предусловия по
// реестру стадий, применяет каскадную инвалидацию и делегирует производство
// артефактов внешним клиентам. Сам оркестратор детерминирован и не
// кэширует ничего, кроме живых сессий.
type Orchestrator struct {
	story   StoryScriptGenerator
	panels  PanelImageGenerator
	charRef CharacterRefGenerator
	model   ModelConverter
	derived DerivedConfigGenerator
	sink    ResultSink
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*sessionEntry
}

var _ Service = (*Orchestrator)(nil)

// NewOrchestrator создает оркестратор с внешними коллабораторами.
func NewOrchestrator(
	story StoryScriptGenerator,
	panels PanelImageGenerator,
	charRef CharacterRefGenerator,
	model ModelConverter,
	derived DerivedConfigGenerator,
	sink ResultSink,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		story:    story,
		panels:   panels,
		charRef:  charRef,
		model:    model,
		derived:  derived,
		sink:     sink,
		logger:   logger.Named("Orchestrator"),
		sessions: make(map[uuid.UUID]*sessionEntry),
	}
}

// CreateSession создает сессию по свободной идее. Пустая идея заменяется
// на DefaultIdea. Начальный снимок сразу уходит в Result Sink.
func (o *Orchestrator) CreateSession(ctx context.Context, idea string) (*models.PipelineSession, error) {
	if idea == "" {
		idea = DefaultIdea
	}
	sess := models.NewPipelineSession(idea)
	entry := &sessionEntry{sess: sess}

	o.mu.Lock()
	o.sessions[sess.ID] = entry
	o.mu.Unlock()

	o.logger.Info("Pipeline session created",
		zap.String("sessionID", sess.ID.String()),
		zap.Int("ideaLength", len(idea)))

	snap := sess.Clone()
	o.push(ctx, snap)
	return snap, nil
}

// DiscardSession удаляет сессию. Долговременных семантик удаления нет:
// сессия просто перестает существовать для оркестратора.
func (o *Orchestrator) DiscardSession(sessionID uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.sessions[sessionID]; !ok {
		return models.ErrSessionNotFound
	}
	delete(o.sessions, sessionID)
	o.logger.Info("Pipeline session discarded", zap.String("sessionID", sessionID.String()))
	return nil
}

// Snapshot возвращает снимок сессии без побочных эффектов.
func (o *Orchestrator) Snapshot(sessionID uuid.UUID) (*models.PipelineSession, error) {
	entry, err := o.entry(sessionID)
	if err != nil {
		return nil, err
	}
	entry.dataMu.RLock()
	defer entry.dataMu.RUnlock()
	return entry.sess.Clone(), nil
}

// GenerateStage запускает генерацию одной стадии. Повторный вызов для уже
// готовой стадии - no-op, возвращающий текущий снимок: это позволяет
// вызывающему "сгенерировать, если отсутствует" без предварительной
// проверки состояния.
func (o *Orchestrator) GenerateStage(ctx context.Context, sessionID uuid.UUID, stage models.StageID) (*models.PipelineSession, error) {
	entry, err := o.entry(sessionID)
	if err != nil {
		return nil, err
	}
	if !entry.opMu.TryLock() {
		return nil, fmt.Errorf("%w: session %s", models.ErrSessionBusy, sessionID)
	}
	defer entry.opMu.Unlock()

	if err := o.generateLocked(ctx, entry, stage); err != nil {
		return nil, err
	}
	return o.snapshotOf(entry), nil
}

// RedoStage перегенерирует стадию: транзитивно вычисляет цели каскада,
// атомарно сбрасывает их вместе с самой стадией (один переход, один пуш
// в Result Sink) и сразу запускает генерацию только этой стадии. Цели
// каскада остаются Empty до явного запроса вызывающего: регенерация
// дорогая, а новый артефакт выше по цепочке может поменять то, чего
// пользователь хочет ниже.
func (o *Orchestrator) RedoStage(ctx context.Context, sessionID uuid.UUID, stage models.StageID) (*models.PipelineSession, error) {
	entry, err := o.entry(sessionID)
	if err != nil {
		return nil, err
	}
	if !entry.opMu.TryLock() {
		return nil, fmt.Errorf("%w: session %s", models.ErrSessionBusy, sessionID)
	}
	defer entry.opMu.Unlock()

	// Validate-then-mutate: до этой проверки сессия не меняется,
	// поэтому отказ redo оставляет прежний Ready-артефакт нетронутым.
	entry.dataMu.RLock()
	rec := entry.sess.Stage(stage)
	entry.dataMu.RUnlock()
	if !rec.IsRedoable() {
		return nil, fmt.Errorf("%w: stage %s is %s, redo requires ready or failed", models.ErrPreconditionNotMet, stage, rec.Status)
	}

	targets := TransitiveCascadeTargets(stage)
	o.transition(ctx, entry, func(sess *models.PipelineSession) {
		o.clearStage(sess, stage)
		for _, target := range targets {
			o.clearStage(sess, target)
		}
	})
	o.logger.Info("Stage invalidated with cascade",
		zap.String("sessionID", sessionID.String()),
		zap.String("stage", string(stage)),
		zap.Int("cascadeTargets", len(targets)))

	if err := o.generateLocked(ctx, entry, stage); err != nil {
		return nil, err
	}
	return o.snapshotOf(entry), nil
}

// GenerateAll прогоняет все стадии в порядке зависимостей (полный прогон в
// духе исходного generate-ip) и затем производит game/toy конфигурации.
// Уже готовые стадии пропускаются. Первая ошибка прерывает прогон.
func (o *Orchestrator) GenerateAll(ctx context.Context, sessionID uuid.UUID) (*models.PipelineSession, error) {
	entry, err := o.entry(sessionID)
	if err != nil {
		return nil, err
	}
	if !entry.opMu.TryLock() {
		return nil, fmt.Errorf("%w: session %s", models.ErrSessionBusy, sessionID)
	}
	defer entry.opMu.Unlock()

	for _, stage := range models.AllStages {
		if err := o.generateLocked(ctx, entry, stage); err != nil {
			return nil, err
		}
	}
	if err := o.generateDerivedLocked(ctx, entry); err != nil {
		return nil, err
	}
	return o.snapshotOf(entry), nil
}

// entry находит живую сессию.
func (o *Orchestrator) entry(sessionID uuid.UUID) (*sessionEntry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
	}
	return entry, nil
}

// generateLocked выполняет генерацию стадии. Вызывается только под opMu.
func (o *Orchestrator) generateLocked(ctx context.Context, entry *sessionEntry, stage models.StageID) error {
	entry.dataMu.RLock()
	rec := entry.sess.Stage(stage)
	sessionID := entry.sess.ID
	entry.dataMu.RUnlock()

	// Явный short-circuit до проверки предусловий: Ready-стадия - no-op.
	if rec.Status == models.StageReady {
		return nil
	}
	if !rec.IsGeneratable() {
		return fmt.Errorf("%w: stage %s is %s", models.ErrPreconditionNotMet, stage, rec.Status)
	}
	entry.dataMu.RLock()
	var notReady []models.StageID
	for _, dep := range DependenciesOf(stage) {
		if entry.sess.Stage(dep).Status != models.StageReady {
			notReady = append(notReady, dep)
		}
	}
	entry.dataMu.RUnlock()
	if len(notReady) > 0 {
		return fmt.Errorf("%w: stage %s requires ready dependencies %v", models.ErrPreconditionNotMet, stage, notReady)
	}

	log := o.logger.With(
		zap.String("sessionID", sessionID.String()),
		zap.String("stage", string(stage)))
	log.Info("Stage generation started")

	// Переход в Pending уходит в Result Sink до внешнего вызова, чтобы
	// вызывающий мог показать прогресс до завершения.
	o.transition(ctx, entry, func(sess *models.PipelineSession) {
		sess.SetStage(stage, models.StageRecord{Status: models.StagePending})
	})

	if err := o.produce(ctx, entry, stage); err != nil {
		typedErr := classifyClientError(err)
		o.transition(ctx, entry, func(sess *models.PipelineSession) {
			o.clearStage(sess, stage)
			sess.SetStage(stage, models.StageRecord{
				Status:    models.StageFailed,
				LastError: err.Error(),
			})
		})
		log.Warn("Stage generation failed", zap.Error(err))
		return typedErr
	}

	o.transition(ctx, entry, func(sess *models.PipelineSession) {
		sess.SetStage(stage, models.StageRecord{Status: models.StageReady})
	})
	log.Info("Stage generation completed")
	return nil
}

// produce вызывает внешнего коллаборатора стадии и записывает артефакт.
// Блокирующий внешний вызов выполняется без dataMu: на время генерации
// сессию защищает только single-flight opMu, так что читатели видят
// согласованный Pending-снимок.
func (o *Orchestrator) produce(ctx context.Context, entry *sessionEntry, stage models.StageID) error {
	entry.dataMu.RLock()
	idea := entry.sess.OriginalIdea
	script := entry.sess.StoryScript
	panel1 := entry.sess.Panels[0]
	charRef := entry.sess.CharacterRef
	entry.dataMu.RUnlock()

	switch stage {
	case models.StageStoryScript:
		generated, err := o.story.GenerateStoryScript(ctx, idea)
		if err != nil {
			return err
		}
		if len(generated.Panels) != models.PanelCount {
			return fmt.Errorf("%w: story script has %d panels, want %d", models.ErrExternalClient, len(generated.Panels), models.PanelCount)
		}
		o.mutate(entry, func(sess *models.PipelineSession) {
			sess.StoryScript = generated
		})
		return nil

	case models.StagePanel1, models.StagePanel2, models.StagePanel3:
		idx := panelIndex(stage)
		prompt := script.Panels[idx].ImagePrompt
		url, err := o.panels.GeneratePanelImage(ctx, prompt)
		if err != nil {
			return err
		}
		o.mutate(entry, func(sess *models.PipelineSession) {
			sess.Panels[idx] = models.ImageArtifact{URL: url}
		})
		return nil

	case models.StageCharacterRef:
		// placeholder никогда не используется как настоящий URL ниже
		// по пайплайну; Ready-зависимость гарантирует реальный URL,
		// проверка оставлена как защита инварианта.
		if panel1.IsPlaceholder() {
			return fmt.Errorf("%w: panel 1 artifact is a placeholder", models.ErrPreconditionNotMet)
		}
		url, promptUsed, err := o.charRef.GenerateCharacterRef(ctx, panel1.URL, script)
		if err != nil {
			return err
		}
		o.mutate(entry, func(sess *models.PipelineSession) {
			sess.CharacterRef = models.ImageArtifact{URL: url}
			sess.CharacterRefPrompt = promptUsed
		})
		return nil

	case models.StageModel3D:
		if charRef.IsPlaceholder() {
			return fmt.Errorf("%w: character reference artifact is a placeholder", models.ErrPreconditionNotMet)
		}
		artifact, err := o.model.ConvertImageToModel(ctx, charRef.URL)
		if err != nil {
			return err
		}
		o.mutate(entry, func(sess *models.PipelineSession) {
			sess.Model3D = *artifact
		})
		return nil
	}
	panic(fmt.Sprintf("pipeline: produce called with unknown stage %q", stage))
}

// generateDerivedLocked производит game/toy конфигурации. Требует готовой
// Model3D; вызывается только под opMu.
func (o *Orchestrator) generateDerivedLocked(ctx context.Context, entry *sessionEntry) error {
	entry.dataMu.RLock()
	idea := entry.sess.OriginalIdea
	script := entry.sess.StoryScript
	model := entry.sess.Model3D
	ready := entry.sess.Stage(models.StageModel3D).Status == models.StageReady
	entry.dataMu.RUnlock()

	if !ready {
		return fmt.Errorf("%w: derived configs require a ready 3d model", models.ErrPreconditionNotMet)
	}

	gameCfg, err := o.derived.GenerateGameConfig(ctx, idea, script)
	if err != nil {
		return classifyClientError(err)
	}
	toyCfg, err := o.derived.BuildToyConfig(script, model)
	if err != nil {
		return classifyClientError(err)
	}
	o.transition(ctx, entry, func(sess *models.PipelineSession) {
		sess.GameConfig = gameCfg
		sess.ToyConfig = toyCfg
	})
	return nil
}

// clearStage сбрасывает артефакт стадии в placeholder и запись - в Empty.
// Инвалидация Model3D также убирает производные конфигурации.
func (o *Orchestrator) clearStage(sess *models.PipelineSession, stage models.StageID) {
	switch stage {
	case models.StageStoryScript:
		sess.StoryScript = nil
	case models.StagePanel1, models.StagePanel2, models.StagePanel3:
		sess.Panels[panelIndex(stage)] = models.ImageArtifact{URL: models.PlaceholderURL}
	case models.StageCharacterRef:
		sess.CharacterRef = models.ImageArtifact{URL: models.PlaceholderURL}
		sess.CharacterRefPrompt = ""
	case models.StageModel3D:
		sess.Model3D = models.ModelArtifact{URL: models.PlaceholderURL}
		sess.GameConfig = nil
		sess.ToyConfig = nil
	}
	sess.SetStage(stage, models.StageRecord{Status: models.StageEmpty})
}

// transition применяет мутацию под dataMu и толкает получившийся снимок в
// Result Sink одним пушем. Снимок строится внутри критической секции,
// поэтому наблюдатели не видят частично примененных переходов.
func (o *Orchestrator) transition(ctx context.Context, entry *sessionEntry, fn func(*models.PipelineSession)) {
	entry.dataMu.Lock()
	fn(entry.sess)
	snap := entry.sess.Clone()
	entry.dataMu.Unlock()
	o.push(ctx, snap)
}

// mutate применяет мутацию без пуша (артефакт записывается до перехода
// статуса, который и уйдет в синк).
func (o *Orchestrator) mutate(entry *sessionEntry, fn func(*models.PipelineSession)) {
	entry.dataMu.Lock()
	fn(entry.sess)
	entry.dataMu.Unlock()
}

func (o *Orchestrator) snapshotOf(entry *sessionEntry) *models.PipelineSession {
	entry.dataMu.RLock()
	defer entry.dataMu.RUnlock()
	return entry.sess.Clone()
}

// push отправляет снимок в Result Sink. Ошибка синка не откатывает переход.
func (o *Orchestrator) push(ctx context.Context, snap *models.PipelineSession) {
	if o.sink == nil {
		return
	}
	if err := o.sink.Push(ctx, snap); err != nil {
		o.logger.Warn("Result sink push failed",
			zap.String("sessionID", snap.ID.String()),
			zap.Error(err))
	}
}

// panelIndex возвращает индекс слота панели для панельной стадии.
func panelIndex(stage models.StageID) int {
	switch stage {
	case models.StagePanel1:
		return 0
	case models.StagePanel2:
		return 1
	case models.StagePanel3:
		return 2
	}
	panic(fmt.Sprintf("pipeline: stage %q is not a panel stage", stage))
}

// classifyClientError приводит ошибку коллаборатора к типизированной
// таксономии. Уже типизированные ошибки (таймаут/провал задачи и т.п.)
// проходят как есть, остальное оборачивается в ExternalClientError.
func classifyClientError(err error) error {
	switch {
	case errors.Is(err, models.ErrExternalJob),
		errors.Is(err, models.ErrJobTimeout),
		errors.Is(err, models.ErrNoArtifactURL),
		errors.Is(err, models.ErrJobNotCreatable),
		errors.Is(err, models.ErrExternalClient),
		errors.Is(err, models.ErrPreconditionNotMet),
		errors.Is(err, models.ErrValidation):
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrExternalClient, err)
}
