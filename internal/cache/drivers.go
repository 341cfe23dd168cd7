package cache

import "fmt"

const (
	DriverLevelDB = "leveldb"
	DriverFile    = "file"
	DriverMemory  = "memory"
)

// Drivers 返回受支持的驱动名称，用于配置校验与错误提示。
func Drivers() []string {
	return []string{DriverLevelDB, DriverFile, DriverMemory}
}

// SupportedDriver 判断驱动名称是否受支持。
func SupportedDriver(name string) bool {
	for _, d := range Drivers() {
		if d == name {
			return true
		}
	}
	return false
}

// NewStorage 按驱动名称构建 Storage；memory 驱动忽略 path。
func NewStorage(driver, path string) (Storage, error) {
	switch driver {
	case DriverLevelDB, "":
		return NewLevelStorage(path)
	case DriverFile:
		return NewFileStorage(path)
	case DriverMemory:
		return NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", driver)
	}
}
