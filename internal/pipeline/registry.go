package pipeline

import (
	"fmt"

	"ip-studio-server/internal/models"
)

// stageInfo - одна строка статической таблицы стадий: прямые зависимости
// и прямые цели каскадной инвалидации при redo.
type stageInfo struct {
	dependsOn []models.StageID
	cascades  []models.StageID
}

// stageTable - статическое определение графа стадий. Инвалидация при redo
// затрагивает только то, что было построено из конкретного артефакта
// стадии, а не все нижестоящие стадии подряд: redo Panel2 не трогает
// CharacterRef, потому что референс персонажа строился только из Panel1.
// Model3D достигается из Panel1 транзитивно через CharacterRef, прямого
// ребра Panel1->Model3D нет.
var stageTable = map[models.StageID]stageInfo{
	models.StageStoryScript: {
		dependsOn: nil,
		cascades: []models.StageID{
			models.StagePanel1,
			models.StagePanel2,
			models.StagePanel3,
			models.StageCharacterRef,
			models.StageModel3D,
		},
	},
	models.StagePanel1: {
		dependsOn: []models.StageID{models.StageStoryScript},
		cascades:  []models.StageID{models.StageCharacterRef},
	},
	models.StagePanel2: {
		dependsOn: []models.StageID{models.StageStoryScript},
		cascades:  nil,
	},
	models.StagePanel3: {
		dependsOn: []models.StageID{models.StageStoryScript},
		cascades:  nil,
	},
	models.StageCharacterRef: {
		dependsOn: []models.StageID{models.StagePanel1},
		cascades:  []models.StageID{models.StageModel3D},
	},
	models.StageModel3D: {
		dependsOn: []models.StageID{models.StageCharacterRef},
		cascades:  nil,
	},
}

// mustInfo возвращает строку таблицы. Неизвестный StageID - ошибка
// программирования, а не рантайма: все внешние значения проходят через
// models.ParseStageID до обращения к реестру.
func mustInfo(id models.StageID) stageInfo {
	info, ok := stageTable[id]
	if !ok {
		panic(fmt.Sprintf("pipeline: unknown stage %q", id))
	}
	return info
}

// DependenciesOf возвращает множество прямых зависимостей стадии.
func DependenciesOf(id models.StageID) []models.StageID {
	return append([]models.StageID(nil), mustInfo(id).dependsOn...)
}

// CascadeTargetsOf возвращает множество прямых целей каскадной
// инвалидации стадии.
func CascadeTargetsOf(id models.StageID) []models.StageID {
	return append([]models.StageID(nil), mustInfo(id).cascades...)
}

// TransitiveCascadeTargets вычисляет транзитивное замыкание каскада:
// цели стадии плюс цели каждой цели. Сама стадия в результат не входит.
func TransitiveCascadeTargets(id models.StageID) []models.StageID {
	seen := make(map[models.StageID]bool)
	var out []models.StageID

	var walk func(models.StageID)
	walk = func(cur models.StageID) {
		for _, target := range mustInfo(cur).cascades {
			if seen[target] || target == id {
				continue
			}
			seen[target] = true
			out = append(out, target)
			walk(target)
		}
	}
	walk(id)
	return out
}
