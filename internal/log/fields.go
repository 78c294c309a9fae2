package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldErrorType  = "error_type"
	FieldOperation  = "operation"
	FieldUserID     = "user_id"
	FieldVersion    = "version"
	FieldYear       = "year"
	FieldMonth      = "month"
	FieldPlan       = "plan"
	FieldLimitKind  = "limit_kind"
	FieldEventType  = "event_type"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentBudget    = "budget"
	ComponentBilling   = "billing"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentAuth      = "auth"
)

// Operations defines standard operation names
const (
	OpDashboard              = "dashboard"
	OpAnnual                 = "annual"
	OpUsage                  = "usage"
	OpListTransactions       = "list_transactions"
	OpAddTransaction         = "add_transaction"
	OpRemoveTransaction      = "remove_transaction"
	OpAddFixedExpense        = "add_fixed_expense"
	OpUpdateFixedExpense     = "update_fixed_expense"
	OpRemoveFixedExpense     = "remove_fixed_expense"
	OpAddTemporaryExpense    = "add_temporary_expense"
	OpRemoveTemporaryExpense = "remove_temporary_expense"
	OpSetGoal                = "set_goal"
	OpProfile                = "profile"
	OpSaveProfile            = "save_profile"
	OpOnboarding             = "onboarding"
	OpImport                 = "import"
	OpExport                 = "export"
	OpBillingEvent           = "billing_event"
	OpSync                   = "sync"
	OpShutdown               = "shutdown"
	OpStartup                = "startup"
)

// Error type categories reported with FieldErrorType.
const (
	ErrorTypeValidation = "validation_error"
	ErrorTypeLimit      = "limit_error"
	ErrorTypeAuth       = "auth_error"
	ErrorTypeNotFound   = "not_found_error"
	ErrorTypeForbidden  = "forbidden_error"
	ErrorTypeInternal   = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error message, skipping nil errors.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithErrorType(kind string) LogFields {
	f[FieldErrorType] = kind
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithUser(userID string) LogFields {
	f[FieldUserID] = userID
	return f
}

func (f LogFields) WithLimitKind(kind string) LogFields {
	f[FieldLimitKind] = kind
	return f
}

// WithPeriod adds month and year fields.
func (f LogFields) WithPeriod(month, year int) LogFields {
	f[FieldMonth] = month
	f[FieldYear] = year
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
