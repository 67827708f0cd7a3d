// 包 wizard：刊登向导步骤状态机
// 背景：类别 -> 意图 -> 交易/雇佣类型 -> 可用性 -> (可用性详情) -> 位置 -> 详情 -> 完成；
// Transition 为纯函数，图层存储、绘制会话等副作用由 Controller 在转移之后按序执行。
// 约束：Transition 是全函数，当前步骤不接受的事件或非法取值原样返回状态；CLOSE 在任何步骤都回到初始状态。
package wizard

type Step string

const (
	StepCategory            Step = "category"
	StepIntent              Step = "intent"
	StepTransactionType     Step = "transaction_type"
	StepEmploymentType      Step = "employment_type"
	StepAvailability        Step = "availability"
	StepAvailabilityDetails Step = "availability_details"
	StepLocation            Step = "location"
	StepDetails             Step = "details"
	StepComplete            Step = "complete"
)

// Steps 全部步骤，按流程顺序
var Steps = []Step{
	StepCategory, StepIntent, StepTransactionType, StepEmploymentType, StepAvailability,
	StepAvailabilityDetails, StepLocation, StepDetails, StepComplete,
}

type Category string

const (
	Property Category = "property"
	Job      Category = "job"
)

type Intent string

const (
	Offer  Intent = "offer"
	Search Intent = "search"
)

type TransactionType string

const (
	Sale TransactionType = "sale"
	Rent TransactionType = "rent"
)

type EmploymentType string

const (
	FullTime   EmploymentType = "full_time"
	PartTime   EmploymentType = "part_time"
	Freelance  EmploymentType = "freelance"
	Internship EmploymentType = "internship"
	Seasonal   EmploymentType = "seasonal"
)

type Availability string

const (
	Now    Availability = "now"
	Future Availability = "future"
)

// UploadedFile 用户上传的几何文件及其生成的图层
type UploadedFile struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	LayerID string `json:"layer_id"`
}

// Details 详情步骤收集的刊登信息
type Details struct {
	Title        string  `json:"title,omitempty"`
	PropertyType string  `json:"property_type,omitempty"`
	Description  string  `json:"description,omitempty"`
	Price        float64 `json:"price,omitempty"`
}

type State struct {
	Step              Step            `json:"step"`
	Category          Category        `json:"category,omitempty"`
	Intent            Intent          `json:"intent,omitempty"`
	TransactionType   TransactionType `json:"transaction_type,omitempty"`
	EmploymentType    EmploymentType  `json:"employment_type,omitempty"`
	Availability      Availability    `json:"availability,omitempty"`
	AvailableFrom     string          `json:"available_from,omitempty"`
	AssociatedLayerID string          `json:"layer_id,omitempty"`
	UploadedFile      *UploadedFile   `json:"uploaded_file,omitempty"`
	Details           *Details        `json:"details,omitempty"`
}

func Initial() State { return State{Step: StepCategory} }

// UploadBacked 关联图层是否来自上传
func (s State) UploadBacked() bool {
	return s.UploadedFile != nil && s.AssociatedLayerID != ""
}

type EventType string

const (
	SelectCategory        EventType = "SELECT_CATEGORY"
	SelectIntent          EventType = "SELECT_INTENT"
	SelectTransactionType EventType = "SELECT_TRANSACTION_TYPE"
	SelectEmploymentType  EventType = "SELECT_EMPLOYMENT_TYPE"
	SelectAvailability    EventType = "SELECT_AVAILABILITY"
	Submit                EventType = "SUBMIT"
	FinishFileUpload      EventType = "FINISH_FILE_UPLOAD"
	FinishDrawing         EventType = "FINISH_DRAWING"
	FinishPositioning     EventType = "FINISH_POSITIONING"
	SubmitDetails         EventType = "SUBMIT_DETAILS"
	Back                  EventType = "BACK"
	Close                 EventType = "CLOSE"
)

type Event struct {
	Type    EventType     `json:"type"`
	Value   string        `json:"value,omitempty"`
	Date    string        `json:"date,omitempty"`
	LayerID string        `json:"layer_id,omitempty"`
	File    *UploadedFile `json:"file,omitempty"`
	Details *Details      `json:"details,omitempty"`
}

func validCategory(v string) bool { return v == string(Property) || v == string(Job) }
func validIntent(v string) bool   { return v == string(Offer) || v == string(Search) }
func validTransaction(v string) bool {
	return v == string(Sale) || v == string(Rent)
}

func validEmployment(v string) bool {
	switch EmploymentType(v) {
	case FullTime, PartTime, Freelance, Internship, Seasonal:
		return true
	}
	return false
}

func validAvailability(v string) bool { return v == string(Now) || v == string(Future) }

// needsAvailabilityDetails 前进与后退共用的分支谓词
func needsAvailabilityDetails(s State) bool {
	if s.Availability != Future {
		return false
	}
	return s.Category == Job || (s.Category == Property && s.Intent == Offer)
}

func typeStep(c Category) Step {
	if c == Job {
		return StepEmploymentType
	}
	return StepTransactionType
}

// Transition 纯状态转移
func Transition(s State, e Event) State {
	if e.Type == Close {
		return Initial()
	}
	if e.Type == Back {
		return back(s)
	}
	switch s.Step {
	case StepCategory:
		if e.Type == SelectCategory && validCategory(e.Value) {
			return State{Step: StepIntent, Category: Category(e.Value)}
		}
	case StepIntent:
		if e.Type == SelectIntent && validIntent(e.Value) {
			s.Intent = Intent(e.Value)
			s.Step = typeStep(s.Category)
			return s
		}
	case StepTransactionType:
		if e.Type == SelectTransactionType && validTransaction(e.Value) {
			s.TransactionType = TransactionType(e.Value)
			s.Step = StepAvailability
			return s
		}
	case StepEmploymentType:
		if e.Type == SelectEmploymentType && validEmployment(e.Value) {
			s.EmploymentType = EmploymentType(e.Value)
			s.Step = StepAvailability
			return s
		}
	case StepAvailability:
		if e.Type == SelectAvailability && validAvailability(e.Value) {
			s.Availability = Availability(e.Value)
			if needsAvailabilityDetails(s) {
				s.Step = StepAvailabilityDetails
			} else {
				s.Step = StepLocation
			}
			return s
		}
	case StepAvailabilityDetails:
		if e.Type == Submit {
			s.AvailableFrom = e.Date
			s.Step = StepLocation
			return s
		}
	case StepLocation:
		switch e.Type {
		case FinishFileUpload:
			if e.File != nil && e.File.LayerID != "" {
				f := *e.File
				s.UploadedFile = &f
				s.AssociatedLayerID = f.LayerID
				return s
			}
		case FinishDrawing:
			if e.LayerID != "" {
				s.AssociatedLayerID = e.LayerID
				s.UploadedFile = nil
				s.Step = StepDetails
				return s
			}
		case FinishPositioning:
			if s.UploadBacked() {
				s.Step = StepDetails
				return s
			}
		}
	case StepDetails:
		if e.Type == SubmitDetails {
			d := Details{}
			if e.Details != nil {
				d = *e.Details
			}
			s.Details = &d
			s.Step = StepComplete
			return s
		}
	}
	return s
}

// back 回到产生当前步骤的前一步，并清除该步及其之后收集的字段
func back(s State) State {
	switch s.Step {
	case StepIntent:
		return Initial()
	case StepTransactionType, StepEmploymentType:
		return State{Step: StepIntent, Category: s.Category}
	case StepAvailability:
		s.Step = typeStep(s.Category)
		s.TransactionType, s.EmploymentType = "", ""
		s.Availability, s.AvailableFrom = "", ""
		return s
	case StepAvailabilityDetails:
		s.Step = StepAvailability
		s.Availability, s.AvailableFrom = "", ""
		return s
	case StepLocation:
		if needsAvailabilityDetails(s) {
			s.Step = StepAvailabilityDetails
			s.AvailableFrom = ""
		} else {
			s.Step = StepAvailability
			s.Availability, s.AvailableFrom = "", ""
		}
		s.AssociatedLayerID, s.UploadedFile = "", nil
		return s
	case StepDetails:
		s.Step = StepLocation
		s.Details = nil
		if !s.UploadBacked() {
			s.AssociatedLayerID, s.UploadedFile = "", nil
		}
		return s
	}
	// category 无前驱；complete 只接受 CLOSE
	return s
}
