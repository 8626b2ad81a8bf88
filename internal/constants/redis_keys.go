package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// SessionModulePrefix 会话模块
	SessionModulePrefix = "session"
	// WarmModulePrefix 预热模块
	WarmModulePrefix = "warm"

	// EntityResume 解析后的简历
	EntityResume = "resume"
	// EntityLock 分布式锁实体
	EntityLock = "lock"

	// KeySessionResume 会话缓存条目 (STRING, JSON)
	// 格式: app:session:resume:{sessionID}
	KeySessionResume = AppPrefix + ":" + SessionModulePrefix + ":" + EntityResume + ":%s"

	// KeyWarmLock 同一会话的预热去重锁 (STRING)
	// 格式: app:warm:lock:{sessionID}
	KeyWarmLock = AppPrefix + ":" + WarmModulePrefix + ":" + EntityLock + ":%s"
)
