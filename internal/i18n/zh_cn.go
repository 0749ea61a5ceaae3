package i18n

// ZhCNMessages 简体中文消息目录
var ZhCNMessages = map[string]string{
	// UI - 面板标题
	"panel.chat":     "对话",
	"panel.projects": "项目",
	"panel.notes":    "笔记",
	"panel.settings": "设置",
	"panel.models":   "模型",

	// UI - 状态栏
	"status.ready":   "就绪",
	"status.loading": "加载中...",
	"status.saving":  "保存中...",
	"status.project": "项目",
	"status.thread":  "会话",
	"status.tokens":  "约 %d tokens",
	"status.failed":  "上次查询失败",

	// UI - 对话视图
	"chat.new":         "+ 新建",
	"chat.limit":       "会话数量已达上限 (%d)",
	"chat.empty":       "暂无消息。输入问题后按回车发送。",
	"chat.you":         "你",
	"chat.assistant":   "助手",
	"chat.placeholder": "输入问题...",
	"chat.cleared":     "已清空 %s",
	"chat.created":     "已创建 %s",

	// UI - 设置栏
	"settings.model": "模型",
	"settings.hint":  "←/→ 选择 · +/- 调整 · m 模型",

	// UI - 项目面板
	"projects.placeholder": "新项目名称",
	"projects.empty":       "没有项目",
	"projects.created":     "已创建项目 %s",
	"projects.switched":    "已切换到项目 %s",

	// UI - 笔记面板
	"notes.placeholder": "新笔记名称",
	"notes.empty":       "没有笔记",
	"notes.none":        "选择或新建一条笔记",
	"notes.saved":       "已保存 %s",
	"notes.created":     "已创建笔记 %s",
	"notes.hint":        "enter 打开 · ctrl+n 新建 · ctrl+s 保存 · esc 返回",

	// UI - 模型选择
	"models.placeholder": "搜索模型",
	"models.none":        "没有匹配的模型",
	"models.selected":    "模型已切换为 %s",
	"models.fallback":    "模型列表不可用，使用默认模型",

	// UI - 快捷键
	"help.keys": "enter 发送 · ctrl+p 项目 · ctrl+o 设置 · ctrl+e 笔记 · ctrl+t 新会话 · tab 下一会话 · ctrl+l 清空 · ctrl+c 退出",

	// 错误
	"error.generic": "错误: %s",
	"error.backend": "无法连接后端 %s",

	// REPL
	"repl.welcome":     "querydesk · 后端 %s · 项目 %s · %s",
	"repl.help_hint":   "输入 /help 查看命令。",
	"repl.unknown":     "未知命令: %s",
	"repl.usage":       "用法: %s",
	"repl.bye":         "再见。",
	"repl.note_input":  "输入笔记内容，单独一行 \".\" 结束",
	"repl.no_journal":  "查询日志未启用",
	"repl.no_note":     "未选择笔记，请先 /note <名称>",
	"repl.active":      "当前",
	"repl.log_empty":   "暂无日志记录",
	"repl.interrupted": "已中断。输入 /quit 退出。",

	// REPL 命令
	"repl.commands":    "命令:",
	"repl.prompt_hint": "其他输入作为问题发送。行尾加 \\ 可续行。",
	"cmd.help":         "显示帮助",
	"cmd.quit":         "退出",
	"cmd.projects":     "列出项目",
	"cmd.project":      "切换项目",
	"cmd.mkproject":    "新建项目",
	"cmd.chats":        "列出当前项目的会话",
	"cmd.chat":         "选择会话",
	"cmd.new":          "新建会话",
	"cmd.clear":        "清空当前会话",
	"cmd.notes":        "列出笔记",
	"cmd.note":         "打开笔记",
	"cmd.mknote":       "新建笔记",
	"cmd.save":         "保存当前笔记 (读取到 \".\" 为止)",
	"cmd.set":          "设置 temperature, top_p, top_k 或 frequency_penalty",
	"cmd.inc":          "参数增加一步",
	"cmd.dec":          "参数减少一步",
	"cmd.settings":     "显示模型设置",
	"cmd.models":       "列出模型",
	"cmd.model":        "选择模型",
	"cmd.log":          "显示最近的查询日志，或当前会话的日志",
}
