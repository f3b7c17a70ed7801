package models

import "time"

// JobStatus - статус асинхронной задачи конвертации изображения в 3D.
// Значения повторяют терминологию внешнего сервиса (Meshy-совместимый API).
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobSucceeded  JobStatus = "SUCCEEDED"
	JobFailed     JobStatus = "FAILED"
	JobCanceled   JobStatus = "CANCELED"
)

// IsTerminal сообщает, является ли статус терминальным:
// из него задача уже никуда не перейдет.
func (s JobStatus) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCanceled
}

// AsyncJob - транзиентный хэндл задачи конвертации. Не является частью
// сессии: живет от создания задачи до терминального статуса или таймаута.
type AsyncJob struct {
	JobID              string    `json:"jobId"`
	ResultBaseLocation string    `json:"resultBaseLocation"`
	Status             JobStatus `json:"status"`
	ProgressPercent    int       `json:"progressPercent"`
	CreatedAt          time.Time `json:"createdAt"`
}
