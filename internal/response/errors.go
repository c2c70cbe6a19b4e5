package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrSessionConflict    ErrCode = "SESSION_CONFLICT"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrTeacherOnly     ErrCode = "TEACHER_ACCESS_ONLY"
	ErrNotAttemptOwner ErrCode = "NOT_ATTEMPT_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer  ErrCode = "INVALID_ANSWER"
	ErrInvalidKey     ErrCode = "INVALID_ANSWER_KEY"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Quiz attempt ──────────────────────────────────────────────────
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"
	ErrAttemptCompleted  ErrCode = "ATTEMPT_COMPLETED"
	ErrAttemptNotRunning ErrCode = "ATTEMPT_NOT_IN_PROGRESS"
	ErrIndexOutOfRange   ErrCode = "INDEX_OUT_OF_RANGE"
	ErrWrongQuestionType ErrCode = "WRONG_QUESTION_TYPE"
	ErrLevelLocked       ErrCode = "LEVEL_LOCKED"

	// ─── Exam composer ─────────────────────────────────────────────────
	ErrInsufficientQuestions ErrCode = "INSUFFICIENT_QUESTIONS"
	ErrTopicRequired         ErrCode = "TOPIC_REQUIRED"
	ErrInvalidCount          ErrCode = "INVALID_COUNT"
	ErrInvalidLevel          ErrCode = "INVALID_LEVEL"
	ErrEmptyStructure        ErrCode = "EMPTY_STRUCTURE"
	ErrRequirementNotFound   ErrCode = "REQUIREMENT_NOT_FOUND"
	ErrNoRecipients          ErrCode = "NO_RECIPIENTS"
	ErrPoolShrinkage         ErrCode = "POOL_SHRINKAGE"

	// ─── Server ────────────────────────────────────────────────────────
	ErrRateLimited ErrCode = "RATE_LIMITED"
	ErrInternal    ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrSessionInvalidated:
		return "Phiên đăng nhập đã hết hạn. Vui lòng đăng nhập lại."
	case ErrSessionConflict:
		return "Tài khoản đang được đăng nhập trên thiết bị khác."
	case ErrTokenRequired:
		return "Cần có token xác thực."
	case ErrTokenInvalid:
		return "Token xác thực không hợp lệ."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Bạn không có quyền truy cập tài nguyên này."
	case ErrTeacherOnly:
		return "Chức năng này chỉ dành cho giáo viên."
	case ErrNotAttemptOwner:
		return "Bài làm này không thuộc về bạn."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Dữ liệu không hợp lệ. Vui lòng kiểm tra lại."
	case ErrInvalidID:
		return "Định dạng ID không hợp lệ."
	case ErrInvalidPayload:
		return "Nội dung yêu cầu không hợp lệ."
	case ErrInvalidAnswer:
		return "Câu trả lời không đúng định dạng của câu hỏi."
	case ErrInvalidKey:
		return "Đáp án không đúng định dạng của loại câu hỏi."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Không tìm thấy tài nguyên."
	case ErrConflict:
		return "Tài nguyên đã tồn tại."

	// ─── Quiz attempt ──────────────────────────────────────────────────
	case ErrNoQuestions:
		return "Không có câu hỏi nào cho lựa chọn này."
	case ErrAttemptCompleted:
		return "Bài làm đã được nộp."
	case ErrAttemptNotRunning:
		return "Bài làm chưa bắt đầu hoặc đã kết thúc."
	case ErrIndexOutOfRange:
		return "Số thứ tự câu hỏi không hợp lệ."
	case ErrWrongQuestionType:
		return "Thao tác không áp dụng cho loại câu hỏi này."
	case ErrLevelLocked:
		return "Mức độ này chưa được mở khóa. Hãy vượt qua mức độ trước đó."

	// ─── Exam composer ─────────────────────────────────────────────────
	case ErrInsufficientQuestions:
		return "Ngân hàng không đủ câu hỏi cho yêu cầu này."
	case ErrTopicRequired:
		return "Vui lòng chọn chủ đề."
	case ErrInvalidCount:
		return "Số lượng phải lớn hơn 0."
	case ErrInvalidLevel:
		return "Mức độ không hợp lệ."
	case ErrEmptyStructure:
		return "Cấu trúc đề đang trống."
	case ErrRequirementNotFound:
		return "Không tìm thấy yêu cầu trong cấu trúc đề."
	case ErrNoRecipients:
		return "Danh sách học sinh đang trống."
	case ErrPoolShrinkage:
		return "Ngân hàng câu hỏi đã thay đổi, không đủ câu cho đề."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrRateLimited:
		return "Quá nhiều yêu cầu. Vui lòng thử lại sau."
	case ErrInternal:
		return "Đã xảy ra lỗi máy chủ."
	default:
		return "Đã xảy ra lỗi không xác định."
	}
}
