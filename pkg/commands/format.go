package commands

import (
	"fmt"
	"strings"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
)

// Reply texts.
const (
	msgPicked      = "你捡到了一个瓶中信！"
	msgViewPicked  = "这是一个被捡起的瓶中信！"
	msgNoBottles   = "海面上没有别人的瓶中信了..."
	msgBlocked     = "瓶中信内容不合规，已被屏蔽。"
	msgPickFailed  = "捡起瓶中信失败，请稍后重试..."
	msgEmptyCloud  = "瓶中信不能是空的哦，请至少包含文字或图片～"
	msgThrowFailed = "添加瓶中信失败，请稍后重试..."
	msgCloudFailed = "添加云瓶中信失败，请稍后重试或查看日志..."
	msgNonePicked  = "还没有被捡起的瓶中信..."
	msgCountFailed = "获取云瓶中信数量失败，请稍后重试..."
	msgListHeader  = "以下是所有被捡起的瓶中信："
	listSeparator  = "------------------------"
)

func thrownLocal(id string) string { return "你的瓶中信已经扔进大海了！瓶子的编号是 " + id }

func thrownCloud(id string) string { return "你的瓶中信已经扔进大海了！云瓶中信的编号是 " + id }

func notFound(id string) string { return fmt.Sprintf("没有找到编号为 %s 的瓶中信", id) }

func seaCount(active, picked int) string {
	return fmt.Sprintf("当前海面上还有 %d 个瓶中信\n你已经捡起 %d 个瓶中信", active, picked)
}

func limitMessage(err *bottle.ValidationError) string {
	if err.Field == "images" {
		return fmt.Sprintf("图片数量超过限制（最大 %d 张）", err.Limit)
	}
	return fmt.Sprintf("漂流瓶内容超过长度限制（最大 %d 字）", err.Limit)
}

// Card renders a bottle, optionally headed by a line of text.
func Card(b bottle.Bottle, heading string) string {
	var sb strings.Builder
	if heading != "" {
		sb.WriteString(heading)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "瓶中信编号：%s\n", b.ID)
	fmt.Fprintf(&sb, "发送者：%s\n", b.Sender)
	fmt.Fprintf(&sb, "时间：%s\n", b.Timestamp)
	fmt.Fprintf(&sb, "内容：%s", b.Content)
	return sb.String()
}

// PickedList renders a collection in the order given.
func PickedList(bottles []bottle.Bottle) string {
	if len(bottles) == 0 {
		return msgNonePicked
	}
	var sb strings.Builder
	sb.WriteString(msgListHeader)
	sb.WriteString("\n\n")
	for _, b := range bottles {
		fmt.Fprintf(&sb, "瓶子编号：%s\n", b.ID)
		fmt.Fprintf(&sb, "投放者：%s\n", b.Sender)
		fmt.Fprintf(&sb, "投放时间：%s\n", b.Timestamp)
		sb.WriteString(listSeparator)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}
