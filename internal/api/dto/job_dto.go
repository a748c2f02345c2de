package dto

type UploadRequest struct {
	UserName string `form:"user_name" binding:"required"`
}

type UploadResponse struct {
	Message  string `json:"message"`
	TaskID   string `json:"task_id,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type DownloadRequest struct {
	WaitForLLMProcessing bool `form:"wait_for_llm_processing"`
}

type DownloadResponse struct {
	Message  string `json:"message"`
	TaskID   string `json:"task_id"`
	Filename string `json:"filename"`
	Data     string `json:"data,omitempty"`
}

type ListJobsRequest struct {
	Status string `form:"status"`
}

type ListJobsResponse struct {
	Jobs []JobDTO `json:"jobs"`
}

type JobDTO struct {
	JobID               string `json:"job_id"`
	InputPath           string `json:"input_file_path"`
	OutputPath          string `json:"md_file_path,omitempty"`
	ContentArtifactPath string `json:"content_list_json_path,omitempty"`
	Status              string `json:"status"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
}
