package models

// BookingStatus is the workflow state of a booking.
type BookingStatus string

const (
	StatusPending    BookingStatus = "PENDING"
	StatusConfirmed  BookingStatus = "CONFIRMED"
	StatusInProgress BookingStatus = "IN_PROGRESS"
	StatusCompleted  BookingStatus = "COMPLETED"
	StatusCancelled  BookingStatus = "CANCELLED"
)

// AllStatuses lists statuses in workflow order.
var AllStatuses = []BookingStatus{
	StatusPending,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
}

const (
	VehicleTypeMotor = "motor"
	VehicleTypeMobil = "mobil"
	VehicleTypeBoth  = "both"
)

const (
	// DateLayout формат дат бронирования и последнего сервиса
	DateLayout = "2006-01-02"

	// ServiceIntervalDays через сколько дней после сервиса машина снова требует обслуживания
	ServiceIntervalDays = 90

	// MinVehicleYear самый ранний допустимый год выпуска
	MinVehicleYear = 1980

	// OTPLength длина одноразового кода
	OTPLength = 6

	// MinPointsRedeem минимальный баланс для списания баллов
	MinPointsRedeem = 100

	// VehicleNotFound подставляется в обогащённую запись, если машина удалена
	VehicleNotFound = "Vehicle not found"

	// ServiceNotFound подставляется, если услуга отсутствует в каталоге
	ServiceNotFound = "Service not found"
)

// TimeSlots are the workshop's bookable hours.
var TimeSlots = []string{
	"08:00-09:00",
	"09:00-10:00",
	"10:00-11:00",
	"11:00-12:00",
	"13:00-14:00",
	"14:00-15:00",
	"15:00-16:00",
	"16:00-17:00",
}

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are expected.
func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether the booking is still being worked on.
func (s BookingStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusInProgress
}

// DisplayName returns the label shown to customers.
func (s BookingStatus) DisplayName() string {
	switch s {
	case StatusPending:
		return "Menunggu Konfirmasi"
	case StatusConfirmed:
		return "Dikonfirmasi"
	case StatusInProgress:
		return "Sedang Dikerjakan"
	case StatusCompleted:
		return "Selesai"
	case StatusCancelled:
		return "Dibatalkan"
	default:
		return string(s)
	}
}
