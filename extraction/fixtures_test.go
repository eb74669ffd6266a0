package extraction

import "encoding/json"

const (
	kidCaseID = "000004453845358552334337"

	kidBackground = "幽默而不失风趣的怪盗，作风华丽的怪盗基德。在一次月圆之夜，你遇见了他，奇妙的邂逅就此展开。（两个结局都是判断成功哦）"
	kidGood       = "基德把宝石还给了博物馆，你们在天台上看了一整夜的月亮。"
	kidBad        = "基德带着宝石消失在夜色中，只留下一张写给你的预告函。"
	kidInner      = "表面玩世不恭，内心重情重义"
	kidModel      = "ep-20250424184956-vk9j9"
	kidTemplate   = "你是{{system_1}}，性别{{system_2}}。{{system_4}}\n请等待玩家做出判断。"
	kidRoleRef    = "r_000004453845358552334999"

	feiqiBackground = "顾飞祁，死对头京圈大佬。而你是他商业死对头，顾飞祁处处跟你做对，可最近他竟对你示好，想和你合作… 你细想好像顾飞祁虽然讨人厌却也没伤害过你…\n \n请判断顾飞祁是好人？还是坏人？究竟有什么目的？"

	catBackground = "深夜，你在回家路上，路灯突然熄灭，一只黑猫出现在你面前，它居然...说话了...\n而你，在好奇心驱使下，想要发现它究竟是不是邪恶的生物。"
)

const kidContent = `[
  {"id": "n1", "type": "text", "content": [
    {"val": "背景介绍", "inName": "none", "sub": [
      {"val": "` + kidBackground + `", "inName": "none", "outName": "bg_1"}
    ]},
    {"val": "{{角色名称}}", "inName": "system_1"},
    {"val": "好人结局", "inName": "none", "sub": [
      {"val": "` + kidGood + `", "inName": "none"}
    ]},
    {"val": "坏人结局", "inName": "none", "sub": [
      {"val": "` + kidBad + `", "inName": "none"}
    ]}
  ]}
]`

const kidParams = `[
  {"inName": "system_1", "outName": "o_role", "val": "` + kidRoleRef + `", "chainId": 1, "type": "string"},
  {"outName": "` + kidRoleRef + `", "get": [{"val": "nickname"}]},
  {"inName": "system_2", "outName": "o_gender", "val": "男"},
  {"inName": "system_4", "outName": "o_inner", "val": "p_inner"},
  {"outName": "p_inner", "set": [{"val": "` + kidInner + `"}]},
  {"inName": "model", "val": "` + kidModel + `"},
  {"inName": "system", "val": "你是{{system_1}}，性别{{system_2}}。{{system_4}}\n请等待玩家做出判断。"}
]`

func kidRecord() CaseRecord {
	return CaseRecord{
		CaseID:               kidCaseID,
		RoleName:             Field{Ref: &Ref{Slot: "system_1", ID: kidRoleRef, Selector: "nickname"}},
		RoleGender:           Field{Value: "男"},
		InnerPersonality:     Field{Value: kidInner},
		Background:           kidBackground,
		ModelID:              kidModel,
		SystemPromptTemplate: kidTemplate,
		TemplateSlots:        []string{"system_1", "system_2", "system_4"},
		GoodEnding:           kidGood,
		BadEnding:            kidBad,
	}
}

// singleLeafContent is a content document with one narrative leaf.
func singleLeafContent(text string) string {
	return `[{"id": "n1", "type": "text", "content": [{"val": ` + quote(text) + `, "inName": "none"}]}]`
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
