package cache

import "time"

// entry 缓存条目。expiresAt 为零值表示永不过期。
type entry struct {
	key       string
	value     any
	expiresAt time.Time
	prev      *entry
	next      *entry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// entryList 双向链表，head 为最新（最近使用/最近插入），tail 为最旧
type entryList struct {
	head *entry
	tail *entry
}

// pushFront 添加节点到头部 O(1)
func (l *entryList) pushFront(e *entry) {
	e.prev = nil
	e.next = l.head
	if l.head != nil {
		l.head.prev = e
	}
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
}

// remove 从链表中移除节点 O(1)
func (l *entryList) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

// moveToFront 移动节点到头部 O(1)
func (l *entryList) moveToFront(e *entry) {
	if e == l.head {
		return
	}
	l.remove(e)
	l.pushFront(e)
}

func (l *entryList) reset() {
	l.head = nil
	l.tail = nil
}

// expiresAtFor 计算过期时间点；ttl <= 0 时返回 now（立即过期）
func expiresAtFor(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return now
	}
	return now.Add(ttl)
}

// countItems 统计有效与过期条目，并粗略估算内存占用
func countItems(items map[string]*entry, now time.Time) (valid, expired int, bytes int64) {
	for k, e := range items {
		if e.expired(now) {
			expired++
		} else {
			valid++
		}
		bytes += int64(len(k)) + estimateSize(e.value)
	}
	return valid, expired, bytes
}

// estimateSize 粗略估算值的字节数，无法判断的类型按 128 字节计
func estimateSize(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return int64(len(x))
	case []byte:
		return int64(len(x))
	case bool, int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32, float32:
		return 4
	case int, int64, uint, uint64, float64, time.Duration:
		return 8
	case []string:
		var n int64
		for _, s := range x {
			n += int64(len(s))
		}
		return n
	default:
		return 128
	}
}
