package models

// ChunkReceipt acknowledges one stored chunk
type ChunkReceipt struct {
	Success        bool   `json:"success"`
	UploadID       string `json:"upload_id"`
	ChunkIndex     int    `json:"chunk_index"`
	UploadedChunks int    `json:"uploaded_chunks"`
	TotalChunks    int    `json:"total_chunks"`
}

// UploadStatus describes the registry view of an upload
type UploadStatus struct {
	Found          bool    `json:"found"`
	UploadID       string  `json:"upload_id"`
	FileName       string  `json:"file_name,omitempty"`
	TotalChunks    int     `json:"total_chunks"`
	UploadedChunks int     `json:"uploaded_chunks"`
	ReceivedChunks []int   `json:"received_chunks"`
	MissingChunks  []int   `json:"missing_chunks"`
	IsComplete     bool    `json:"is_complete"`
	Progress       float64 `json:"progress"`
}

// FinalizeRequest asks the server to reassemble and store an upload
type FinalizeRequest struct {
	UploadID     string `json:"upload_id" validate:"required"`
	FileName     string `json:"file_name" validate:"required"`
	FileSize     int64  `json:"file_size" validate:"gte=0"`
	FileType     string `json:"file_type"`
	TotalChunks  int    `json:"total_chunks" validate:"required,gt=0"`
	FileHash     string `json:"file_hash"`
	OriginalSize int64  `json:"original_size,omitempty"`
	Compressed   bool   `json:"compressed,omitempty"`
	SessionKey   string `json:"session_key,omitempty"`
	ReceiverID   string `json:"receiver_id,omitempty"`
	StreamID     string `json:"stream_id,omitempty"`
}

// FinalizeResult describes the stored artifact and the transfer announcing it
type FinalizeResult struct {
	FileURL     string    `json:"file_url"`
	FileName    string    `json:"file_name"`
	FileSize    int64     `json:"file_size"`
	FileHash    string    `json:"file_hash,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	StoragePath string    `json:"storage_path,omitempty"`
	Compressed  bool      `json:"compressed,omitempty"`
	Transfer    *Transfer `json:"transfer,omitempty"`
}
