package handler

// CreateSessionRequest - тело создания сессии. Пустая идея допустима:
// сервер подставит идею по умолчанию.
type CreateSessionRequest struct {
	Idea string `json:"idea"`
}

// CreateJobRequest - тело создания задачи конвертации напрямую,
// в обход пайплайна.
type CreateJobRequest struct {
	SourceImageURL string `json:"sourceImageUrl" binding:"required"`
}

// CreateJobResponse - хэндл созданной задачи конвертации.
type CreateJobResponse struct {
	JobID              string `json:"jobId"`
	ResultBaseLocation string `json:"resultBaseLocation"`
}

// JobStatusResponse - статус задачи конвертации.
type JobStatusResponse struct {
	Status          string `json:"status"`
	ProgressPercent int    `json:"progressPercent"`
	ArtifactURL     string `json:"artifactUrl,omitempty"`
	Format          string `json:"format,omitempty"`
}

// APIError - стандартизированный ответ об ошибке.
type APIError struct {
	Error string `json:"error"`
}
